package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/config"
	"github.com/JakeFAU/niw-crawler/internal/convert"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/niw-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/niw-crawler/internal/harvest"
	"github.com/JakeFAU/niw-crawler/internal/metrics"
	"github.com/JakeFAU/niw-crawler/internal/ocr"
	"github.com/JakeFAU/niw-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/niw-crawler/internal/storage/local"
	"github.com/JakeFAU/niw-crawler/internal/storage/postgres"
)

// Scrape runs one harvest/download/convert/extract/append pass. A positive
// chunkSize overrides pipeline.chunk_size.
func (a *App) Scrape(ctx context.Context, chunkSize int) (crawler.RunStats, error) {
	cfg := a.cfg
	if chunkSize > 0 {
		cfg.Pipeline.ChunkSize = chunkSize
	}
	if len(cfg.Harvest.IndexURLs) == 0 {
		a.logger.Warn("No index pages configured; set harvest.index_urls")
	}

	deps, cleanup, err := a.pipelineDeps(ctx, cfg)
	if err != nil {
		return crawler.RunStats{}, err
	}
	defer cleanup()

	pipeline, err := crawler.NewPipeline(crawler.PipelineConfig{
		ChunkSize: cfg.Pipeline.ChunkSize,
		Workers:   cfg.Pipeline.Workers,
	}, deps, a.logger)
	if err != nil {
		return crawler.RunStats{}, fmt.Errorf("configure pipeline: %w", err)
	}

	stats, runErr := pipeline.Run(ctx)
	// Mirror and dump metrics even after a canceled pass.
	a.mirrorDataset(context.WithoutCancel(ctx))
	a.writeMetrics()
	if runErr != nil {
		return stats, fmt.Errorf("scrape: %w", runErr)
	}
	return stats, nil
}

func (a *App) pipelineDeps(ctx context.Context, cfg config.Config) (crawler.PipelineDeps, func(), error) {
	noop := func() {}
	fetcher := ratelimit.NewFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Harvest.UserAgent,
		RespectRobots: cfg.Harvest.RespectRobots,
		Timeout:       cfg.Harvest.Timeout,
		MaxBodyBytes:  cfg.Harvest.MaxBodyBytes,
	}, a.logger), ratelimit.New(ratelimit.Config{
		RPS:   cfg.Harvest.RequestsPerSecond,
		Burst: cfg.Harvest.Burst,
	}))

	harvester, err := harvest.New(harvest.Config{
		IndexURLs: cfg.Harvest.IndexURLs,
		SkipRows:  cfg.Harvest.SkipRows,
	}, fetcher, a.logger)
	if err != nil {
		return crawler.PipelineDeps{}, noop, fmt.Errorf("configure harvester: %w", err)
	}

	workspace, err := local.NewWorkspace(a.dirs.Raw(), a.dirs.Converted())
	if err != nil {
		return crawler.PipelineDeps{}, noop, fmt.Errorf("open workspace: %w", err)
	}

	runner := ocr.NewExecRunner(a.logger)
	converter, err := convert.New(convert.Config{
		Pdftoppm:  cfg.Convert.Pdftoppm,
		DPI:       cfg.Convert.DPI,
		OutputDir: a.dirs.Converted(),
	}, runner, a.logger)
	if err != nil {
		return crawler.PipelineDeps{}, noop, fmt.Errorf("configure converter: %w", err)
	}

	tesseract := ocr.NewTesseract(ocr.TesseractConfig{
		Binary: cfg.OCR.Binary,
		Lang:   cfg.OCR.Lang,
		OEM:    cfg.OCR.OEM,
		PSM:    cfg.OCR.PSM,
	}, runner)
	extractor := extract.New(tesseract, extract.Config{
		NIWPhrase: cfg.OCR.NIWPhrase,
		Markers:   extract.DefaultMarkers(),
	}, a.logger)

	deps := crawler.PipelineDeps{
		Harvester: harvester,
		Fetcher:   fetcher,
		Workspace: workspace,
		Converter: converter,
		Extractor: extractor,
		Dataset:   a.dataset,
		IDs:       a.ids,
		Clock:     a.clock,
	}

	if cfg.Database.DSN == "" {
		return deps, noop, nil
	}
	store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:   cfg.Database.DSN,
		Table: cfg.Database.Table,
	})
	if err != nil {
		return crawler.PipelineDeps{}, noop, fmt.Errorf("connect record mirror: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return crawler.PipelineDeps{}, noop, fmt.Errorf("prepare record mirror: %w", err)
	}
	a.logger.Info("Mirroring records to Postgres", zap.String("table", cfg.Database.Table))
	deps.Mirrors = map[string]crawler.RecordSink{"postgres": store}
	return deps, store.Close, nil
}

func (a *App) mirrorDataset(ctx context.Context) {
	if a.blobs == nil {
		return
	}
	snap, err := a.dataset.Snapshot()
	if err != nil {
		a.logger.Warn("Dataset snapshot failed; skipping mirror", zap.Error(err))
		return
	}
	defer func() { _ = snap.Close() }()

	key := "dataset/" + filepath.Base(a.dataset.Path())
	uri, err := a.blobs.PutObject(ctx, key, "text/csv", snap)
	if err != nil {
		a.logger.Warn("Dataset mirror failed", zap.String("key", key), zap.Error(err))
		return
	}
	a.logger.Info("Mirrored dataset", zap.String("uri", uri))
}

func (a *App) writeMetrics() {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(path); err != nil {
		a.logger.Warn("Writing metrics textfile failed", zap.Error(err))
	}
}
