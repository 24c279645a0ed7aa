// Package analysis turns the record dataset into processing-time
// distributions and percentile scores for one service center.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/metrics"
)

const day = 24 * time.Hour

// Config tunes cleaning and grouping.
type Config struct {
	// FloorYear is the first notice year reported.
	FloorYear int
	// Quantiles lists the distribution columns in [0,1].
	Quantiles []float64
	// ClipQuantile drops rows whose processing time exceeds this quantile.
	// Zero disables clipping.
	ClipQuantile float64
	// TrailingMonths bounds the notice-date window used for percentiles.
	TrailingMonths int
}

// DefaultConfig returns the reporting defaults.
func DefaultConfig() Config {
	return Config{
		FloorYear:      2017,
		Quantiles:      DefaultQuantiles(),
		ClipQuantile:   0.99,
		TrailingMonths: 6,
	}
}

// Validate checks quantile bounds and the window.
func (c Config) Validate() error {
	if len(c.Quantiles) == 0 {
		return errors.New("analysis.quantiles must not be empty")
	}
	for _, q := range c.Quantiles {
		if q < 0 || q > 1 {
			return fmt.Errorf("analysis.quantiles: %v out of range [0,1]", q)
		}
	}
	if c.ClipQuantile < 0 || c.ClipQuantile > 1 {
		return fmt.Errorf("analysis.clip_quantile must be within [0,1]")
	}
	if c.TrailingMonths <= 0 {
		return fmt.Errorf("analysis.trailing_months must be > 0")
	}
	return nil
}

// Sample is a cleaned record with its processing time in whole days.
type Sample struct {
	Filename       string
	ReceivedDate   time.Time
	NoticeDate     time.Time
	ProcessingDays int
}

// Row is one notice year of the distribution table.
type Row struct {
	Year int `json:"notice_year"`
	Summary
}

// Table is the per-year processing-time distribution for a center.
type Table struct {
	Center    crawler.ServiceCenter `json:"service_center"`
	Labels    []string              `json:"labels"`
	Quantiles []float64             `json:"quantiles"`
	Rows      []Row                 `json:"rows"`
	Samples   int                   `json:"samples"`
}

// Percentile is the standing of an application among recent approvals.
type Percentile struct {
	Center          crawler.ServiceCenter `json:"service_center"`
	ApplicationDate time.Time             `json:"application_date"`
	DaysElapsed     int                   `json:"days_elapsed"`
	WindowStart     time.Time             `json:"window_start"`
	WindowEnd       time.Time             `json:"window_end"`
	Samples         int                   `json:"samples"`
	Value           float64               `json:"percentile"`
}

// Analyzer reads the dataset on every call; nothing is cached.
type Analyzer struct {
	cfg    Config
	source crawler.RecordSource
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds an Analyzer.
func New(cfg Config, source crawler.RecordSource, clock crawler.Clock, logger *zap.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("record source is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{cfg: cfg, source: source, clock: clock, logger: logger.Named("analysis")}, nil
}

// Preprocess loads the dataset and returns the cleaned samples for center.
func (a *Analyzer) Preprocess(ctx context.Context, center crawler.ServiceCenter) ([]Sample, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("unknown service center %q", center)
	}
	records, err := a.source.LoadRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	samples := Clean(records, center, a.cfg.ClipQuantile)
	a.logger.Debug("Preprocessed dataset",
		zap.String("service_center", string(center)),
		zap.Int("records", len(records)),
		zap.Int("samples", len(samples)),
	)
	return samples, nil
}

// Clean filters records to usable NIW samples for center. Rows must carry a
// received date and a notice date strictly after it. When clip is in (0,1],
// samples whose processing time exceeds the clip quantile are dropped.
func Clean(records []crawler.Record, center crawler.ServiceCenter, clip float64) []Sample {
	var out []Sample
	for _, r := range records {
		if r.ServiceCenter != center || !r.NIW {
			continue
		}
		if !r.ReceivedDate.Valid || !r.ReceivedDate.Before(r.NoticeDate) {
			continue
		}
		out = append(out, Sample{
			Filename:       r.Filename,
			ReceivedDate:   r.ReceivedDate.Time,
			NoticeDate:     r.NoticeDate.Time,
			ProcessingDays: int(r.NoticeDate.Time.Sub(r.ReceivedDate.Time) / day),
		})
	}
	if clip <= 0 || len(out) == 0 {
		return out
	}

	days := processingDays(out)
	sort.Float64s(days)
	limit, err := Quantile(days, clip)
	if err != nil {
		return out
	}
	kept := out[:0]
	for _, s := range out {
		if float64(s.ProcessingDays) <= limit {
			kept = append(kept, s)
		}
	}
	return kept
}

// Analyze groups cleaned samples by notice year, from the floor year through
// the current year, and summarizes each year.
func (a *Analyzer) Analyze(ctx context.Context, center crawler.ServiceCenter) (Table, error) {
	samples, err := a.Preprocess(ctx, center)
	if err != nil {
		metrics.ObserveAnalysis(string(center), metrics.OutcomeError)
		return Table{}, err
	}
	table := BuildTable(center, samples, a.cfg.FloorYear, a.clock.Now().Year(), a.cfg.Quantiles)
	metrics.ObserveAnalysis(string(center), metrics.OutcomeSuccess)
	a.logger.Info("Computed processing time distribution",
		zap.String("service_center", string(center)),
		zap.Int("samples", table.Samples),
		zap.Int("years", len(table.Rows)),
	)
	return table, nil
}

// BuildTable summarizes samples per notice year within [floor, ceil].
// Years without samples are omitted.
func BuildTable(center crawler.ServiceCenter, samples []Sample, floor, ceil int, quantiles []float64) Table {
	byYear := make(map[int][]float64)
	for _, s := range samples {
		y := s.NoticeDate.Year()
		if y < floor || y > ceil {
			continue
		}
		byYear[y] = append(byYear[y], float64(s.ProcessingDays))
	}
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	table := Table{
		Center:    center,
		Quantiles: append([]float64(nil), quantiles...),
		Labels:    make([]string, len(quantiles)),
	}
	for i, q := range quantiles {
		table.Labels[i] = QuantileLabel(q)
	}
	for _, y := range years {
		summary, err := Summarize(byYear[y], quantiles)
		if err != nil {
			continue
		}
		table.Rows = append(table.Rows, Row{Year: y, Summary: summary})
		table.Samples += summary.Count
	}
	return table
}

// PercentileOfDaysElapsed ranks the days elapsed since applicationDate among
// processing times of notices issued in the trailing window ending now.
func (a *Analyzer) PercentileOfDaysElapsed(
	ctx context.Context,
	center crawler.ServiceCenter,
	applicationDate time.Time,
) (Percentile, error) {
	samples, err := a.Preprocess(ctx, center)
	if err != nil {
		return Percentile{}, err
	}
	now := a.clock.Now()
	start := addMonths(now, -a.cfg.TrailingMonths)

	var window []float64
	for _, s := range samples {
		if s.NoticeDate.Before(start) || s.NoticeDate.After(now) {
			continue
		}
		window = append(window, float64(s.ProcessingDays))
	}
	elapsed := int(now.Sub(applicationDate) / day)
	res := Percentile{
		Center:          center,
		ApplicationDate: applicationDate,
		DaysElapsed:     elapsed,
		WindowStart:     start,
		WindowEnd:       now,
		Samples:         len(window),
	}
	p, err := PercentileOfScore(window, float64(elapsed))
	if err != nil {
		return res, fmt.Errorf("percentile for %s since %s: %w", center, start.Format(time.DateOnly), err)
	}
	res.Value = Round2(p)
	a.logger.Info(fmt.Sprintf(
		"Percentile of Days Elapsed Based on Last %d Months of I-140 NIW Data for %s: %.2f%%",
		a.cfg.TrailingMonths, center, res.Value,
	), zap.Int("days_elapsed", elapsed), zap.Int("samples", len(window)))
	return res, nil
}

// addMonths shifts t by n calendar months, clamping the day to the last day
// of the target month instead of rolling over (Aug 31 - 6 months = Feb 29).
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func processingDays(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s.ProcessingDays)
	}
	return out
}

// IsEmpty reports whether the table has no rows.
func (t Table) IsEmpty() bool {
	return len(t.Rows) == 0
}

// MaxValue returns the largest quantile value in the table, for chart scaling.
func (t Table) MaxValue() float64 {
	m := 0.0
	for _, r := range t.Rows {
		for _, v := range r.Quantiles {
			m = math.Max(m, v)
		}
	}
	return m
}
