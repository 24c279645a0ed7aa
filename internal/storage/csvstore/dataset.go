// Package csvstore persists records as an append-only CSV dataset.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

// Dataset reads and appends crawler.Record rows in a single CSV file.
// The header is written only by the first append to an empty file.
type Dataset struct {
	mu   sync.Mutex
	path string
}

// New returns a Dataset rooted at path. The file is created lazily.
func New(path string) (*Dataset, error) {
	if path == "" {
		return nil, errors.New("dataset path is required")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("dataset path %q is a directory", path)
	}
	return &Dataset{path: path}, nil
}

// Path returns the file backing the dataset.
func (d *Dataset) Path() string {
	return d.path
}

// LoadRecords decodes every row. A missing or empty file yields no records.
func (d *Dataset) LoadRecords(_ context.Context) ([]crawler.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	return decode(f)
}

func decode(r io.Reader) ([]crawler.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}

	var records []crawler.Record
	if err := dec.Decode(&records); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return records, nil
}

// AppendRecords writes records to the end of the file and syncs it.
func (d *Dataset) AppendRecords(_ context.Context, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if dir := filepath.Dir(d.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create dataset directory: %w", err)
		}
	}
	f, err := os.OpenFile(d.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open dataset for append: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat dataset: %w", err)
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = info.Size() == 0
	if err := enc.Encode(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode records: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush records: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync dataset: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset: %w", err)
	}
	return nil
}

// Snapshot opens the dataset for reading, for mirroring to a blob store.
func (d *Dataset) Snapshot() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	return f, nil
}
