// Package metrics exposes Prometheus collectors for the crawler and the report server.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages used as the "stage" label.
const (
	StageDownload = "download"
	StageConvert  = "convert"
	StageExtract  = "extract"
	StageAppend   = "append"
)

// Outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
)

var (
	documentsTotal             *prometheus.CounterVec
	stageDurationSeconds       *prometheus.HistogramVec
	indexPagesTotal            *prometheus.CounterVec
	rowsAppendedTotal          prometheus.Counter
	chunkFlushesTotal          *prometheus.CounterVec
	datasetProgressRatio       prometheus.Gauge
	activeWorkers              prometheus.Gauge
	analysisRunsTotal          *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niw_documents_total",
				Help: "Documents handled by the pipeline, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "niw_stage_duration_seconds",
				Help:    "Histogram of per-document stage latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		)

		indexPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niw_index_pages_total",
				Help: "Index pages harvested, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rowsAppendedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "niw_dataset_rows_appended_total",
				Help: "Rows appended to the dataset.",
			},
		)

		chunkFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niw_chunk_flushes_total",
				Help: "Chunk flushes, labeled by sink and outcome.",
			},
			[]string{"sink", "outcome"},
		)

		datasetProgressRatio = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "niw_dataset_progress_ratio",
				Help: "Rows persisted divided by documents listed remotely.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "niw_active_workers",
				Help: "Number of workers currently processing a document.",
			},
		)

		analysisRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "niw_analysis_runs_total",
				Help: "Distribution analyses, labeled by service center and outcome.",
			},
			[]string{"service_center", "outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "niw_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host download limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveDocument records one document passing through a stage.
func ObserveDocument(stage, outcome string, duration time.Duration) {
	Init()
	documentsTotal.WithLabelValues(stage, outcome).Inc()
	if duration > 0 {
		stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
	}
}

// ObserveIndexPage records the outcome of one index page fetch.
func ObserveIndexPage(outcome string) {
	Init()
	indexPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFlush records a chunk flush to the named sink.
func ObserveFlush(sink, outcome string, rows int) {
	Init()
	chunkFlushesTotal.WithLabelValues(sink, outcome).Inc()
	if sink == "dataset" && outcome == OutcomeSuccess && rows > 0 {
		rowsAppendedTotal.Add(float64(rows))
	}
}

// SetProgress sets the persisted/remote ratio.
func SetProgress(ratio float64) {
	Init()
	datasetProgressRatio.Set(ratio)
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveAnalysis records a distribution analysis run.
func ObserveAnalysis(center, outcome string) {
	Init()
	analysisRunsTotal.WithLabelValues(center, outcome).Inc()
}

// ObserveRateLimitDelay records how long a request waited for its host's token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
