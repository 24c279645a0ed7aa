// Package extract turns the OCR text of a receipt notice into a Record.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

// DefaultNIWPhrase marks a National Interest Waiver petition on the notice.
const DefaultNIWPhrase = "Indiv w/Adv Deg"

// Recognizer extracts raw text from an image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Marker maps a token found in the text to a service center.
type Marker struct {
	Token  string
	Center crawler.ServiceCenter
}

// DefaultMarkers lists center markers in precedence order.
func DefaultMarkers() []Marker {
	return []Marker{
		{Token: "SRC", Center: crawler.ServiceCenterSRC},
		{Token: "LIN", Center: crawler.ServiceCenterLIN},
	}
}

// Config tunes field detection.
type Config struct {
	NIWPhrase string
	Markers   []Marker
}

// Extractor runs OCR on a converted image and parses the result.
type Extractor struct {
	ocr    Recognizer
	cfg    Config
	logger *zap.Logger
}

// New builds an Extractor. Empty config fields take the defaults.
func New(ocr Recognizer, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.NIWPhrase == "" {
		cfg.NIWPhrase = DefaultNIWPhrase
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = DefaultMarkers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{ocr: ocr, cfg: cfg, logger: logger.Named("extract")}
}

// Extract OCRs imagePath. Engine failures yield crawler.ErrNoRecord.
func (e *Extractor) Extract(ctx context.Context, imagePath string) (crawler.Record, error) {
	text, err := e.ocr.Recognize(ctx, imagePath)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("%w: %w", crawler.ErrNoRecord, err)
	}
	rec := Parse(filepath.Base(imagePath), text, e.cfg)
	e.logger.Debug("Parsed notice", zap.Stringer("record", rec))
	return rec, nil
}

// Parse builds a Record from OCR text. The first three dates in text order
// are the received, priority and notice dates; with fewer than three all
// are left absent.
func Parse(filename, text string, cfg Config) crawler.Record {
	if cfg.NIWPhrase == "" {
		cfg.NIWPhrase = DefaultNIWPhrase
	}
	if len(cfg.Markers) == 0 {
		cfg.Markers = DefaultMarkers()
	}

	rec := crawler.Record{
		Filename:      filename,
		NIW:           strings.Contains(text, cfg.NIWPhrase),
		ServiceCenter: detectCenter(text, cfg.Markers),
	}
	if dates := SearchDates(text); len(dates) >= 3 {
		rec.ReceivedDate = crawler.NewDate(dates[0].Time)
		rec.PriorityDate = crawler.NewDate(dates[1].Time)
		rec.NoticeDate = crawler.NewDate(dates[2].Time)
	}
	return rec
}

func detectCenter(text string, markers []Marker) crawler.ServiceCenter {
	for _, m := range markers {
		if m.Token != "" && strings.Contains(text, m.Token) {
			return m.Center
		}
	}
	return crawler.ServiceCenterNone
}
