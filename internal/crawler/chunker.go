package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/metrics"
)

const etaWindow = 100

// chunkWriter buffers extracted records and appends them to the dataset in
// fixed-size chunks. The dedup set, the buffer and the append itself share
// one mutex so concurrent workers never interleave a flush.
type chunkWriter struct {
	mu        sync.Mutex
	size      int
	dataset   RecordSink
	mirrors   map[string]RecordSink
	logger    *zap.Logger
	seen      BasenameSet
	buf       []Record
	persisted int
	total     int
	written   int
	dupes     int
	dropped   int
	flushes   int
	durations []time.Duration
}

func newChunkWriter(
	size int,
	dataset RecordSink,
	mirrors map[string]RecordSink,
	persisted []Record,
	total int,
	logger *zap.Logger,
) *chunkWriter {
	seen := make(BasenameSet, len(persisted))
	for _, rec := range persisted {
		seen.Add(rec.Filename)
	}
	return &chunkWriter{
		size:      size,
		dataset:   dataset,
		mirrors:   mirrors,
		logger:    logger,
		seen:      seen,
		persisted: len(persisted),
		total:     total,
	}
}

// Add queues rec for persistence and flushes when the chunk is full.
// It returns false when rec duplicates an already captured filename.
func (w *chunkWriter) Add(ctx context.Context, rec Record, took time.Duration) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if took > 0 {
		w.durations = append(w.durations, took)
		if len(w.durations) > etaWindow {
			w.durations = w.durations[len(w.durations)-etaWindow:]
		}
	}
	if w.seen.Has(rec.Filename) {
		w.dupes++
		return false, nil
	}
	w.seen.Add(rec.Filename)
	w.buf = append(w.buf, rec)
	if len(w.buf) < w.size {
		return true, nil
	}
	return true, w.flushLocked(ctx)
}

// Flush appends whatever is buffered.
func (w *chunkWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *chunkWriter) flushLocked(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	chunk := w.buf
	w.buf = nil

	if err := w.dataset.AppendRecords(ctx, chunk); err != nil {
		metrics.ObserveFlush("dataset", metrics.OutcomeError, len(chunk))
		w.dropped += len(chunk)
		w.logger.Error("Dropped chunk; documents will be retried next run",
			zap.Int("rows", len(chunk)),
			zap.Strings("filenames", filenames(chunk)),
			zap.Error(err),
		)
		return fmt.Errorf("append %d records: %w", len(chunk), err)
	}
	metrics.ObserveFlush("dataset", metrics.OutcomeSuccess, len(chunk))
	w.written += len(chunk)
	w.flushes++

	for name, sink := range w.mirrors {
		if err := sink.AppendRecords(ctx, chunk); err != nil {
			metrics.ObserveFlush(name, metrics.OutcomeError, len(chunk))
			w.logger.Warn("Mirror append failed", zap.String("sink", name), zap.Int("rows", len(chunk)), zap.Error(err))
			continue
		}
		metrics.ObserveFlush(name, metrics.OutcomeSuccess, len(chunk))
	}

	w.logProgress(len(chunk))
	return nil
}

func (w *chunkWriter) logProgress(rows int) {
	done := w.persisted + w.written
	fields := []zap.Field{
		zap.Int("rows", rows),
		zap.Int("rows_written", w.written),
		zap.Int("total_remote", w.total),
	}
	if w.total > 0 {
		ratio := float64(done) / float64(w.total)
		metrics.SetProgress(ratio)
		fields = append(fields, zap.String("progress", fmt.Sprintf("%.2f%%", ratio*100)))
	}
	if eta, ok := w.eta(); ok {
		fields = append(fields, zap.Duration("eta", eta))
	}
	w.logger.Info("Chunk appended to dataset", fields...)
}

// eta estimates the time left from the mean of recent per-document durations.
func (w *chunkWriter) eta() (time.Duration, bool) {
	if len(w.durations) == 0 || w.total == 0 {
		return 0, false
	}
	remaining := w.total - w.persisted - w.written
	if remaining <= 0 {
		return 0, false
	}
	var sum time.Duration
	for _, d := range w.durations {
		sum += d
	}
	mean := sum / time.Duration(len(w.durations))
	return mean * time.Duration(remaining), true
}

func (w *chunkWriter) stats() (written, dupes, dropped, flushes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.dupes, w.dropped, w.flushes
}

func filenames(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Filename
	}
	return out
}
