package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directories is the immutable workspace layout shared by every component.
type Directories struct {
	data      string
	raw       string
	converted string
	reports   string
	dataset   string
}

// NewDirectories cleans the configured paths.
func NewDirectories(p PathsConfig) Directories {
	return Directories{
		data:      filepath.Clean(p.DataDir),
		raw:       filepath.Clean(p.RawDir),
		converted: filepath.Clean(p.ConvertedDir),
		reports:   filepath.Clean(p.ReportsDir),
		dataset:   filepath.Clean(p.Dataset),
	}
}

// Data is the root data directory.
func (d Directories) Data() string { return d.data }

// Raw holds downloaded PDFs.
func (d Directories) Raw() string { return d.raw }

// Converted holds first-page PNGs.
func (d Directories) Converted() string { return d.converted }

// Reports receives rendered analysis artifacts.
func (d Directories) Reports() string { return d.reports }

// Dataset is the CSV dataset file.
func (d Directories) Dataset() string { return d.dataset }

// Ensure creates every directory, including the dataset's parent. It fails
// when a path exists but is not a directory.
func (d Directories) Ensure() error {
	for _, dir := range []string{d.data, d.raw, d.converted, d.reports, filepath.Dir(d.dataset)} {
		info, err := os.Stat(dir)
		switch {
		case err == nil && !info.IsDir():
			return fmt.Errorf("%s exists and is not a directory", dir)
		case err == nil:
			continue
		case !os.IsNotExist(err):
			return fmt.Errorf("stat %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
