package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Workspace lists and writes the flat raw and converted document directories.
type Workspace struct {
	rawDir       string
	convertedDir string
}

// NewWorkspace returns a Workspace over existing directories.
func NewWorkspace(rawDir, convertedDir string) (*Workspace, error) {
	for _, dir := range []string{rawDir, convertedDir} {
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("workspace directories are required")
		}
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
	}
	return &Workspace{rawDir: rawDir, convertedDir: convertedDir}, nil
}

// ListRaw returns the basenames of downloaded PDFs.
func (w *Workspace) ListRaw() ([]string, error) {
	return listByExt(w.rawDir, ".pdf")
}

// ListConverted returns the basenames of converted PNGs.
func (w *Workspace) ListConverted() ([]string, error) {
	return listByExt(w.convertedDir, ".png")
}

// RawPath joins name onto the raw directory.
func (w *Workspace) RawPath(name string) string {
	return filepath.Join(w.rawDir, filepath.Base(name))
}

// ConvertedPath joins name onto the converted directory.
func (w *Workspace) ConvertedPath(name string) string {
	return filepath.Join(w.convertedDir, filepath.Base(name))
}

// ConvertedDir returns the directory converted images are written to.
func (w *Workspace) ConvertedDir() string {
	return w.convertedDir
}

// WriteRaw stores a downloaded document. The file only appears under its
// final name once fully written, so a listing never sees a partial PDF.
func (w *Workspace) WriteRaw(name string, data []byte) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base != name {
		return "", fmt.Errorf("invalid raw file name %q", name)
	}
	tmp, err := os.CreateTemp(w.rawDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write %s: %w", base, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close %s: %w", base, err)
	}
	dst := w.RawPath(base)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("rename %s: %w", base, err)
	}
	return dst, nil
}

func listByExt(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ext) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
