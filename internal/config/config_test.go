package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.ChunkSize != 25 || cfg.Pipeline.Workers != 4 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Harvest.SkipRows != 3 || cfg.Harvest.Timeout != time.Minute {
		t.Fatalf("unexpected harvest defaults: %+v", cfg.Harvest)
	}
	if cfg.Harvest.RequestsPerSecond != 2 || cfg.Harvest.Burst != 4 {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.Harvest)
	}
	if cfg.OCR.OEM != 3 || cfg.OCR.PSM != 6 || cfg.OCR.Lang != "eng" {
		t.Fatalf("unexpected ocr defaults: %+v", cfg.OCR)
	}
	if len(cfg.Analysis.Quantiles) != 5 || cfg.Analysis.ClipQuantile != 0.99 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	app, err := cfg.ApplicationDate()
	if err != nil || !app.Equal(time.Date(2020, 12, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected application date %v err=%v", app, err)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
paths:
  data_dir: /srv/niw
  raw_dir: /srv/niw/raw
  converted_dir: /srv/niw/png
  reports_dir: /srv/niw/reports
  dataset: /srv/niw/i140.csv
harvest:
  index_urls:
    - https://example.com/i140/index.html
    - https://example.com/i140/index2.html
  skip_rows: 2
  timeout: 90s
pipeline:
  chunk_size: 50
  workers: 8
analysis:
  quantiles: [0, 0.05, 0.5, 0.99, 1]
  clip_quantile: 0
  application_date: "2021-03-01"
storage:
  provider: gcs
  gcs_bucket: niw-artifacts
notify:
  provider: pubsub
  project_id: proj
  topic: niw-reports
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv("NIW_PIPELINE_WORKERS", "2")
	t.Setenv("NIW_DATABASE_DSN", "postgres://localhost/niw")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Harvest.IndexURLs) != 2 || cfg.Harvest.SkipRows != 2 {
		t.Fatalf("expected harvest overrides to apply: %+v", cfg.Harvest)
	}
	if cfg.Harvest.Timeout != 90*time.Second {
		t.Fatalf("expected 90s timeout, got %v", cfg.Harvest.Timeout)
	}
	if cfg.Pipeline.ChunkSize != 50 || cfg.Pipeline.Workers != 2 {
		t.Fatalf("expected file then env overrides: %+v", cfg.Pipeline)
	}
	if cfg.Database.DSN != "postgres://localhost/niw" || cfg.Database.Table != "i140_forms" {
		t.Fatalf("expected database from env: %+v", cfg.Database)
	}
	if cfg.Storage.Provider != StorageGCS || cfg.Notify.Provider != NotifyPubSub {
		t.Fatalf("expected providers to be loaded: %+v %+v", cfg.Storage, cfg.Notify)
	}
	if cfg.Logging.Development {
		t.Fatal("expected production logging")
	}
	if got := cfg.Directories().Dataset(); got != "/srv/niw/i140.csv" {
		t.Fatalf("unexpected dataset path %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func validConfig() Config {
	return Config{
		Paths:    PathsConfig{Dataset: "data/i140.csv"},
		Harvest:  HarvestConfig{Timeout: time.Second},
		Pipeline: PipelineConfig{ChunkSize: 25, Workers: 1},
		Convert:  ConvertConfig{DPI: 200},
		Analysis: AnalysisConfig{ApplicationDate: "2020-12-15"},
		Storage:  StorageConfig{Provider: StorageNone},
		Notify:   NotifyConfig{Provider: NotifyLog},
		Server:   ServerConfig{Port: 8080},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chunk size", func(c *Config) { c.Pipeline.ChunkSize = 0 }, "pipeline.chunk_size"},
		{"workers", func(c *Config) { c.Pipeline.Workers = -1 }, "pipeline.workers"},
		{"skip rows", func(c *Config) { c.Harvest.SkipRows = -1 }, "harvest.skip_rows"},
		{"timeout", func(c *Config) { c.Harvest.Timeout = 0 }, "harvest.timeout"},
		{"rate", func(c *Config) { c.Harvest.RequestsPerSecond = -1 }, "harvest.requests_per_second"},
		{"dpi", func(c *Config) { c.Convert.DPI = 0 }, "convert.dpi"},
		{"dataset", func(c *Config) { c.Paths.Dataset = "" }, "paths.dataset"},
		{"application date", func(c *Config) { c.Analysis.ApplicationDate = "15/12/2020" }, "analysis.application_date"},
		{"storage provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"gcs bucket", func(c *Config) { c.Storage.Provider = StorageGCS }, "storage.gcs_bucket"},
		{"local dir", func(c *Config) { c.Storage.Provider = StorageLocal }, "storage.local_dir"},
		{"notify provider", func(c *Config) { c.Notify.Provider = "smtp" }, "notify.provider"},
		{"pubsub topic", func(c *Config) { c.Notify.Provider = NotifyPubSub }, "notify.project_id"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDirectoriesEnsure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := NewDirectories(PathsConfig{
		DataDir:      root,
		RawDir:       filepath.Join(root, "raw"),
		ConvertedDir: filepath.Join(root, "converted"),
		ReportsDir:   filepath.Join(root, "reports"),
		Dataset:      filepath.Join(root, "out", "i140.csv"),
	})
	if err := dirs.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for _, d := range []string{dirs.Raw(), dirs.Converted(), dirs.Reports(), filepath.Dir(dirs.Dataset())} {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected %s to be a directory (err=%v)", d, err)
		}
	}
	if err := dirs.Ensure(); err != nil {
		t.Fatalf("Ensure() should be idempotent: %v", err)
	}
}

func TestDirectoriesEnsureRejectsFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	file := filepath.Join(root, "raw")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	dirs := NewDirectories(PathsConfig{
		DataDir:      root,
		RawDir:       file,
		ConvertedDir: filepath.Join(root, "converted"),
		ReportsDir:   filepath.Join(root, "reports"),
		Dataset:      filepath.Join(root, "i140.csv"),
	})
	err := dirs.Ensure()
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Fatalf("expected not-a-directory error, got %v", err)
	}
}
