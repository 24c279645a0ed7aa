// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage providers for the artifact mirror.
const (
	StorageNone   = "none"
	StorageLocal  = "local"
	StorageGCS    = "gcs"
	StorageMemory = "memory"
)

// Notification providers.
const (
	NotifyLog    = "log"
	NotifyPubSub = "pubsub"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Convert  ConvertConfig  `mapstructure:"convert"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// PathsConfig locates the local workspace.
type PathsConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	RawDir       string `mapstructure:"raw_dir"`
	ConvertedDir string `mapstructure:"converted_dir"`
	ReportsDir   string `mapstructure:"reports_dir"`
	Dataset      string `mapstructure:"dataset"`
}

// HarvestConfig lists the index pages and how to fetch them.
type HarvestConfig struct {
	IndexURLs     []string      `mapstructure:"index_urls"`
	SkipRows      int           `mapstructure:"skip_rows"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	// RequestsPerSecond caps fetches per host; 0 disables the limiter.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// PipelineConfig sizes chunks and the worker pool.
type PipelineConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Workers   int `mapstructure:"workers"`
}

// ConvertConfig configures PDF rasterization.
type ConvertConfig struct {
	Pdftoppm string `mapstructure:"pdftoppm"`
	DPI      int    `mapstructure:"dpi"`
}

// OCRConfig configures the tesseract invocation and field detection.
type OCRConfig struct {
	Binary    string `mapstructure:"binary"`
	Lang      string `mapstructure:"lang"`
	OEM       int    `mapstructure:"oem"`
	PSM       int    `mapstructure:"psm"`
	NIWPhrase string `mapstructure:"niw_phrase"`
}

// AnalysisConfig tunes the distribution report.
type AnalysisConfig struct {
	FloorYear       int       `mapstructure:"floor_year"`
	Quantiles       []float64 `mapstructure:"quantiles"`
	ClipQuantile    float64   `mapstructure:"clip_quantile"`
	ApplicationDate string    `mapstructure:"application_date"`
	TrailingMonths  int       `mapstructure:"trailing_months"`
}

// StorageConfig selects the artifact mirror.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DatabaseConfig enables the optional Postgres record mirror when DSN is set.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// NotifyConfig selects how analysis reports are delivered.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// MetricsConfig sets where batch runs dump Prometheus metrics.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from an optional .env file, the environment and an
// optional YAML file at path.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("NIW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.data_dir", "data")
	v.SetDefault("paths.raw_dir", "data/raw")
	v.SetDefault("paths.converted_dir", "data/converted")
	v.SetDefault("paths.reports_dir", "data/reports")
	v.SetDefault("paths.dataset", "data/i140_forms.csv")
	v.SetDefault("harvest.index_urls", []string{})
	v.SetDefault("harvest.skip_rows", 3)
	v.SetDefault("harvest.user_agent", "niw-crawler/0.1")
	v.SetDefault("harvest.timeout", "60s")
	v.SetDefault("harvest.max_body_bytes", 50*1024*1024)
	v.SetDefault("harvest.respect_robots", false)
	v.SetDefault("harvest.requests_per_second", 2.0)
	v.SetDefault("harvest.burst", 4)
	v.SetDefault("pipeline.chunk_size", 25)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("convert.pdftoppm", "pdftoppm")
	v.SetDefault("convert.dpi", 200)
	v.SetDefault("ocr.binary", "tesseract")
	v.SetDefault("ocr.lang", "eng")
	v.SetDefault("ocr.oem", 3)
	v.SetDefault("ocr.psm", 6)
	v.SetDefault("ocr.niw_phrase", "Indiv w/Adv Deg")
	v.SetDefault("analysis.floor_year", 2017)
	v.SetDefault("analysis.quantiles", []float64{0, 0.25, 0.5, 0.75, 1})
	v.SetDefault("analysis.clip_quantile", 0.99)
	v.SetDefault("analysis.application_date", "2020-12-15")
	v.SetDefault("analysis.trailing_months", 6)
	v.SetDefault("storage.provider", StorageNone)
	v.SetDefault("storage.local_dir", "data/backup")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "niw")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "i140_forms")
	v.SetDefault("notify.provider", NotifyLog)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be > 0")
	}
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be > 0")
	}
	if c.Harvest.SkipRows < 0 {
		return fmt.Errorf("harvest.skip_rows must be >= 0")
	}
	if c.Harvest.Timeout <= 0 {
		return fmt.Errorf("harvest.timeout must be > 0")
	}
	if c.Harvest.RequestsPerSecond < 0 {
		return fmt.Errorf("harvest.requests_per_second must be >= 0")
	}
	if c.Convert.DPI <= 0 {
		return fmt.Errorf("convert.dpi must be > 0")
	}
	if c.Paths.Dataset == "" {
		return fmt.Errorf("paths.dataset is required")
	}
	if _, err := c.ApplicationDate(); err != nil {
		return err
	}
	switch c.Storage.Provider {
	case StorageNone, StorageMemory:
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local provider")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	switch c.Notify.Provider {
	case NotifyLog:
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("notify.provider %q is not supported", c.Notify.Provider)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// ApplicationDate parses analysis.application_date (YYYY-MM-DD, UTC).
func (c Config) ApplicationDate() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.Analysis.ApplicationDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("analysis.application_date: %w", err)
	}
	return t, nil
}

// Directories returns the workspace layout described by Paths.
func (c Config) Directories() Directories {
	return NewDirectories(c.Paths)
}
