package ocr

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEngine wraps failures of the OCR engine itself.
var ErrEngine = errors.New("ocr engine failed")

// TesseractConfig fixes the engine invocation.
type TesseractConfig struct {
	Binary string
	Lang   string
	OEM    int
	PSM    int
}

// DefaultTesseractConfig is the fixed configuration used for receipt notices.
func DefaultTesseractConfig() TesseractConfig {
	return TesseractConfig{Binary: "tesseract", Lang: "eng", OEM: 3, PSM: 6}
}

// Tesseract recognizes text in images.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

// NewTesseract builds a recognizer; a nil runner uses os/exec.
func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	def := DefaultTesseractConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.Lang == "" {
		cfg.Lang = def.Lang
	}
	if runner == nil {
		runner = NewExecRunner(nil)
	}
	return &Tesseract{cfg: cfg, runner: runner}
}

// Args returns the command line for imagePath.
func (t *Tesseract) Args(imagePath string) []string {
	args := []string{imagePath, "stdout", "-l", t.cfg.Lang}
	if t.cfg.OEM >= 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	return args
}

// Recognize returns the text tesseract reads from imagePath.
func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, t.Args(imagePath)...)
	if err != nil {
		msg := strings.TrimSpace(string(errb))
		if msg == "" {
			return "", fmt.Errorf("%w: tesseract %s: %w", ErrEngine, imagePath, err)
		}
		return "", fmt.Errorf("%w: tesseract %s: %w: %s", ErrEngine, imagePath, err, msg)
	}
	return string(out), nil
}
