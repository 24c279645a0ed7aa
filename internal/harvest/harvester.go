// Package harvest lists receipt-notice documents published on index pages.
package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/metrics"
)

// DefaultSkipRows is the number of leading listing rows that are not documents
// (column headers, separator, parent directory link).
const DefaultSkipRows = 3

// Config lists the index pages to visit.
type Config struct {
	IndexURLs []string
	SkipRows  int
}

// Harvester fetches every index page and collects document links.
type Harvester struct {
	cfg     Config
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// New builds a Harvester.
func New(cfg Config, fetcher crawler.Fetcher, logger *zap.Logger) (*Harvester, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.SkipRows < 0 {
		return nil, fmt.Errorf("skip rows must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{cfg: cfg, fetcher: fetcher, logger: logger.Named("harvest")}, nil
}

// Harvest returns the sorted union of document URLs across all index pages.
// A page that fails to load or parse is logged and skipped.
func (h *Harvester) Harvest(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	failed := 0
	for _, page := range h.cfg.IndexURLs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("harvest canceled: %w", err)
		}
		links, err := h.harvestPage(ctx, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("harvest canceled: %w", ctxErr)
			}
			failed++
			metrics.ObserveIndexPage(metrics.OutcomeError)
			h.logger.Error("Index page failed; skipping", zap.String("page", page), zap.Error(err))
			continue
		}
		metrics.ObserveIndexPage(metrics.OutcomeSuccess)
		h.logger.Info("Harvested index page", zap.String("page", page), zap.Int("documents", len(links)))
		for _, l := range links {
			seen[l] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	h.logger.Info("Harvest complete",
		zap.Int("pages", len(h.cfg.IndexURLs)),
		zap.Int("failed_pages", failed),
		zap.Int("documents", len(out)),
	)
	return out, nil
}

func (h *Harvester) harvestPage(ctx context.Context, page string) ([]string, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	body, err := h.fetcher.Fetch(ctx, page)
	if err != nil {
		return nil, err
	}
	return ParseIndex(base, bytes.NewReader(body), h.cfg.SkipRows)
}

// ParseIndex extracts document links from a directory-style listing: the
// anchors in the second column of the page's top-level table, minus the
// first skip rows, resolved against base.
func ParseIndex(base *url.URL, body io.Reader, skip int) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}
	table := doc.Find("body > table").First()
	if table.Length() == 0 {
		return nil, errors.New("index table not found")
	}

	var links []string
	table.Find("tr > td:nth-child(2) > a").Each(func(i int, s *goquery.Selection) {
		if i < skip {
			return
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, base.ResolveReference(ref).String())
	})
	return links, nil
}
