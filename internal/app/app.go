// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
	"github.com/JakeFAU/niw-crawler/internal/clock/system"
	"github.com/JakeFAU/niw-crawler/internal/config"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/id/uuid"
	"github.com/JakeFAU/niw-crawler/internal/publisher/memory"
	"github.com/JakeFAU/niw-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/niw-crawler/internal/storage/csvstore"
	"github.com/JakeFAU/niw-crawler/internal/storage/gcs"
	"github.com/JakeFAU/niw-crawler/internal/storage/local"
	storagememory "github.com/JakeFAU/niw-crawler/internal/storage/memory"
)

// App holds the shared services built once from Config. Services that need
// external tools or network access (the scraping pipeline, the Postgres
// mirror) are built on demand by the commands that use them.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	dirs     config.Directories
	dataset  *csvstore.Dataset
	blobs    crawler.BlobStore
	notifier crawler.Notifier
	analyzer *analysis.Analyzer
	clock    crawler.Clock
	ids      crawler.IDGenerator
	closers  []func() error
}

// Option overrides a collaborator, primarily for tests.
type Option func(*App)

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithNotifier replaces the configured notifier.
func WithNotifier(n crawler.Notifier) Option {
	return func(a *App) { a.notifier = n }
}

// WithBlobStore replaces the configured artifact mirror.
func WithBlobStore(b crawler.BlobStore) Option {
	return func(a *App) { a.blobs = b }
}

// New creates the workspace directories and initializes the services
// described by cfg. It fails fast if any of them cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		dirs:   cfg.Directories(),
		clock:  system.New(),
		ids:    uuid.New(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.dirs.Ensure(); err != nil {
		return nil, fmt.Errorf("prepare directories: %w", err)
	}

	dataset, err := csvstore.New(a.dirs.Dataset())
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	a.dataset = dataset

	if a.blobs == nil {
		if err := a.initBlobStore(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if a.notifier == nil {
		if err := a.initNotifier(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	analyzer, err := analysis.New(analysis.Config{
		FloorYear:      cfg.Analysis.FloorYear,
		Quantiles:      cfg.Analysis.Quantiles,
		ClipQuantile:   cfg.Analysis.ClipQuantile,
		TrailingMonths: cfg.Analysis.TrailingMonths,
	}, a.dataset, a.clock, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("configure analysis: %w", err)
	}
	a.analyzer = analyzer

	logger.Info("Application services initialized",
		zap.String("dataset", a.dirs.Dataset()),
		zap.String("storage", cfg.Storage.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case config.StorageNone:
		a.logger.Info("Artifact mirror disabled")
	case config.StorageMemory:
		a.blobs = storagememory.NewBlobStore()
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return fmt.Errorf("initialize local mirror: %w", err)
		}
		a.blobs = store
	case config.StorageGCS:
		a.logger.Info("Using GCS artifact mirror", zap.String("bucket", a.cfg.Storage.GCSBucket))
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return fmt.Errorf("initialize gcs mirror: %w", err)
		}
		a.blobs = store
		a.closers = append(a.closers, store.Close)
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case config.NotifyLog:
		a.notifier = memory.New(a.logger)
	case config.NotifyPubSub:
		a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", a.cfg.Notify.Topic))
		pub, err := pubsub.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic, a.logger)
		if err != nil {
			return fmt.Errorf("initialize notifier: %w", err)
		}
		a.notifier = pub
		a.closers = append(a.closers, pub.Close)
	default:
		return fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Directories returns the workspace layout.
func (a *App) Directories() config.Directories { return a.dirs }

// Dataset returns the CSV dataset.
func (a *App) Dataset() *csvstore.Dataset { return a.dataset }

// Analyzer returns the distribution analyzer.
func (a *App) Analyzer() *analysis.Analyzer { return a.analyzer }

// Notifier returns the report notifier.
func (a *App) Notifier() crawler.Notifier { return a.notifier }

// BlobStore returns the artifact mirror, or nil when mirroring is disabled.
func (a *App) BlobStore() crawler.BlobStore { return a.blobs }

// Close shuts down owned clients and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing application services", zap.Error(err))
		return err
	}
	return nil
}
