package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/niw-crawler/internal/metrics"
)

// ErrNoRecord marks a document that produced no record.
var ErrNoRecord = errors.New("no record extracted")

// PipelineConfig tunes a pipeline run.
type PipelineConfig struct {
	ChunkSize int
	Workers   int
}

// Validate enforces sane limits.
func (c PipelineConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be > 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	return nil
}

// Pipeline harvests the index pages, reconciles them against the dataset
// and captures every missing document.
type Pipeline struct {
	cfg       PipelineConfig
	harvester Harvester
	fetcher   Fetcher
	workspace Workspace
	converter Converter
	extractor Extractor
	dataset   Dataset
	mirrors   map[string]RecordSink
	ids       IDGenerator
	clock     Clock
	logger    *zap.Logger
}

// PipelineDeps groups the collaborators of a Pipeline.
type PipelineDeps struct {
	Harvester Harvester
	Fetcher   Fetcher
	Workspace Workspace
	Converter Converter
	Extractor Extractor
	Dataset   Dataset
	// Mirrors receive every chunk after the dataset append succeeds.
	Mirrors map[string]RecordSink
	IDs     IDGenerator
	Clock   Clock
}

// NewPipeline wires a Pipeline.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Harvester == nil:
		return nil, errors.New("harvester is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Workspace == nil:
		return nil, errors.New("workspace is required")
	case deps.Converter == nil:
		return nil, errors.New("converter is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Dataset == nil:
		return nil, errors.New("dataset is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Pipeline{
		cfg:       cfg,
		harvester: deps.Harvester,
		fetcher:   deps.Fetcher,
		workspace: deps.Workspace,
		converter: deps.Converter,
		extractor: deps.Extractor,
		dataset:   deps.Dataset,
		mirrors:   deps.Mirrors,
		ids:       deps.IDs,
		clock:     clock,
		logger:    logger.Named("pipeline"),
	}, nil
}

// Run performs one incremental capture. Per-document failures are logged
// and skipped; only failures to read local state or the dataset abort.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	start := p.clock.Now()
	stats := RunStats{RunID: p.newRunID()}
	logger := p.logger.With(zap.String("run_id", stats.RunID))

	persisted, err := p.dataset.LoadRecords(ctx)
	if err != nil {
		return stats, fmt.Errorf("load dataset: %w", err)
	}
	remote, err := p.harvester.Harvest(ctx)
	if err != nil {
		return stats, fmt.Errorf("harvest index pages: %w", err)
	}
	converted, err := p.workspace.ListConverted()
	if err != nil {
		return stats, fmt.Errorf("list converted files: %w", err)
	}
	raw, err := p.workspace.ListRaw()
	if err != nil {
		return stats, fmt.Errorf("list raw files: %w", err)
	}

	plan := Reconcile(remote, persisted, converted, raw)
	stats.Remote = plan.Remote
	stats.Persisted = plan.Persisted
	stats.Scheduled = len(plan.ToProcess)
	logger.Info("Reconciled remote documents",
		zap.Int("remote", plan.Remote),
		zap.Int("persisted", plan.Persisted),
		zap.Int("to_process", len(plan.ToProcess)),
		zap.Int("to_convert", plan.Convert),
		zap.Int("to_download", plan.Download),
	)

	writer := newChunkWriter(p.cfg.ChunkSize, p.dataset, p.mirrors, persisted, plan.Remote, logger)
	results := make(chan itemResult, len(plan.ToProcess))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, item := range plan.ToProcess {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results <- p.processItem(gctx, item, writer, logger)
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for res := range results {
		stats.add(res)
	}

	// Flush with the parent context's values but without its cancellation so
	// an interrupted run still persists what it extracted.
	if err := writer.Flush(context.WithoutCancel(ctx)); err != nil {
		logger.Error("Final chunk flush failed", zap.Error(err))
	}
	var dropped int
	stats.RowsWritten, stats.Duplicates, dropped, stats.Flushes = writer.stats()
	// Every record of a failed chunk counts as a failed document.
	stats.Failed += dropped
	stats.Duration = p.clock.Now().Sub(start)

	logger.Info("Pipeline run finished",
		zap.Int("rows_written", stats.RowsWritten),
		zap.Int("downloaded", stats.Downloaded),
		zap.Int("converted", stats.Converted),
		zap.Int("extracted", stats.Extracted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("duplicates", stats.Duplicates),
		zap.Duration("duration", stats.Duration),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("pipeline interrupted: %w", err)
	}
	return stats, nil
}

type itemResult struct {
	downloaded bool
	converted  bool
	extracted  bool
	skipped    bool
	failed     bool
}

func (s *RunStats) add(r itemResult) {
	if r.downloaded {
		s.Downloaded++
	}
	if r.converted {
		s.Converted++
	}
	if r.extracted {
		s.Extracted++
	}
	if r.skipped {
		s.Skipped++
	}
	if r.failed {
		s.Failed++
	}
}

func (p *Pipeline) processItem(ctx context.Context, item WorkItem, writer *chunkWriter, logger *zap.Logger) itemResult {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var res itemResult
	started := p.clock.Now()
	logger = logger.With(zap.String("url", item.URL), zap.String("file", item.RawName))

	if item.NeedsDownload {
		t0 := p.clock.Now()
		body, err := p.fetcher.Fetch(ctx, item.URL)
		if err != nil {
			metrics.ObserveDocument(metrics.StageDownload, metrics.OutcomeError, p.clock.Now().Sub(t0))
			logger.Warn("Download failed; skipping", zap.Error(err))
			res.skipped = true
			return res
		}
		if _, err := p.workspace.WriteRaw(item.RawName, body); err != nil {
			metrics.ObserveDocument(metrics.StageDownload, metrics.OutcomeError, p.clock.Now().Sub(t0))
			logger.Error("Writing raw document failed; skipping", zap.Error(err))
			res.failed = true
			return res
		}
		metrics.ObserveDocument(metrics.StageDownload, metrics.OutcomeSuccess, p.clock.Now().Sub(t0))
		res.downloaded = true
	}

	imagePath := p.workspace.ConvertedPath(item.ConvertedName)
	if item.NeedsConvert {
		t0 := p.clock.Now()
		out, err := p.converter.Convert(ctx, p.workspace.RawPath(item.RawName))
		if err != nil {
			metrics.ObserveDocument(metrics.StageConvert, metrics.OutcomeError, p.clock.Now().Sub(t0))
			logger.Warn("Conversion failed; skipping", zap.Error(err))
			res.skipped = true
			return res
		}
		metrics.ObserveDocument(metrics.StageConvert, metrics.OutcomeSuccess, p.clock.Now().Sub(t0))
		imagePath = out
		res.converted = true
	}

	t0 := p.clock.Now()
	rec, err := p.extractor.Extract(ctx, imagePath)
	if err != nil {
		metrics.ObserveDocument(metrics.StageExtract, metrics.OutcomeError, p.clock.Now().Sub(t0))
		logger.Warn("Extraction failed; skipping", zap.Error(err))
		res.skipped = true
		return res
	}
	metrics.ObserveDocument(metrics.StageExtract, metrics.OutcomeSuccess, p.clock.Now().Sub(t0))
	if rec.Filename == "" {
		rec.Filename = item.ConvertedName
	}
	res.extracted = true

	added, err := writer.Add(ctx, rec, p.clock.Now().Sub(started))
	if err != nil {
		// The chunk's records are counted as failed by the writer.
		logger.Error("Chunk flush failed", zap.Error(err))
		return res
	}
	if !added {
		metrics.ObserveDocument(metrics.StageAppend, metrics.OutcomeDuplicate, 0)
		logger.Debug("Record already captured", zap.String("filename", rec.Filename))
	}
	return res
}

func (p *Pipeline) newRunID() string {
	if p.ids == nil {
		return ""
	}
	id, err := p.ids.NewID()
	if err != nil {
		p.logger.Warn("Generating run id failed", zap.Error(err))
		return ""
	}
	return id
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
