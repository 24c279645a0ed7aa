// Package convert rasterizes the first page of a downloaded PDF to PNG.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/ocr"
)

// ErrUnreadableDocument is returned for files pdfcpu cannot parse or that have no pages.
var ErrUnreadableDocument = errors.New("unreadable document")

// Config controls rasterization.
type Config struct {
	Pdftoppm  string
	DPI       int
	OutputDir string
}

// Converter validates a PDF and renders page one into OutputDir.
type Converter struct {
	cfg       Config
	runner    ocr.Runner
	pageCount func(path string) (int, error)
	logger    *zap.Logger
}

// New builds a Converter; a nil runner uses os/exec.
func New(cfg Config, runner ocr.Runner, logger *zap.Logger) (*Converter, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = ocr.NewExecRunner(logger)
	}
	return &Converter{
		cfg:       cfg,
		runner:    runner,
		pageCount: api.PageCountFile,
		logger:    logger.Named("convert"),
	}, nil
}

// Convert writes OutputDir/RawToConverted(base(rawPath)) and returns its path.
// Only the first page is rendered.
func (c *Converter) Convert(ctx context.Context, rawPath string) (string, error) {
	base := filepath.Base(rawPath)
	name := crawler.RawToConverted(base)
	if name == base {
		return "", fmt.Errorf("%w: %s is not a .pdf", ErrUnreadableDocument, base)
	}

	pages, err := c.pageCount(rawPath)
	if err != nil {
		return "", fmt.Errorf("%w: page count %s: %w", ErrUnreadableDocument, base, err)
	}
	if pages < 1 {
		return "", fmt.Errorf("%w: %s has no pages", ErrUnreadableDocument, base)
	}

	tmpDir, err := os.MkdirTemp(c.cfg.OutputDir, ".convert-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-f", "1", "-l", "1",
		"-singlefile",
		"-png",
		"-r", strconv.Itoa(c.cfg.DPI),
		rawPath, prefix,
	}
	if _, errb, err := c.runner.Run(ctx, c.cfg.Pdftoppm, args...); err != nil {
		return "", fmt.Errorf("pdftoppm %s: %w: %s", base, err, errb)
	}

	dst := filepath.Join(c.cfg.OutputDir, name)
	if err := os.Rename(prefix+".png", dst); err != nil {
		return "", fmt.Errorf("move rendered page: %w", err)
	}
	c.logger.Debug("Rendered first page", zap.String("file", base), zap.Int("pages", pages), zap.String("image", dst))
	return dst, nil
}
