package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// MockHarvester is a mock implementation of the Harvester interface.
type MockHarvester struct {
	mock.Mock
}

func (m *MockHarvester) Harvest(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

// MockFetcher is a mock implementation of the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	args := m.Called(ctx, rawURL)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}

// MockConverter is a mock implementation of the Converter interface.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) Convert(ctx context.Context, rawPath string) (string, error) {
	args := m.Called(ctx, rawPath)
	return args.String(0), args.Error(1)
}

// stubExtractor derives a record from the image name.
type stubExtractor struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	rename map[string]string
}

func (s *stubExtractor) Extract(_ context.Context, imagePath string) (Record, error) {
	name := filepath.Base(imagePath)
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	if s.fail[name] {
		return Record{}, fmt.Errorf("tesseract exited 1: %w", ErrNoRecord)
	}
	if alias, ok := s.rename[name]; ok {
		name = alias
	}
	return Record{Filename: name, NIW: true, ServiceCenter: ServiceCenterSRC}, nil
}

// memWorkspace keeps file listings in memory.
type memWorkspace struct {
	mu        sync.Mutex
	raw       []string
	converted []string
	written   []string
}

func (w *memWorkspace) ListRaw() ([]string, error)       { return w.raw, nil }
func (w *memWorkspace) ListConverted() ([]string, error) { return w.converted, nil }
func (w *memWorkspace) RawPath(name string) string       { return "/raw/" + name }
func (w *memWorkspace) ConvertedPath(name string) string { return "/converted/" + name }

func (w *memWorkspace) WriteRaw(name string, _ []byte) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, name)
	return w.RawPath(name), nil
}

// memDataset records each append as a separate chunk.
type memDataset struct {
	mu      sync.Mutex
	records []Record
	chunks  [][]Record
	failOn  int
}

func (d *memDataset) LoadRecords(context.Context) ([]Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record(nil), d.records...), nil
}

func (d *memDataset) AppendRecords(_ context.Context, records []Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn > 0 && len(d.chunks)+1 == d.failOn {
		d.chunks = append(d.chunks, nil)
		return errors.New("disk full")
	}
	d.chunks = append(d.chunks, append([]Record(nil), records...))
	d.records = append(d.records, records...)
	return nil
}

func (d *memDataset) filenames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.records))
	for _, r := range d.records {
		out = append(out, r.Filename)
	}
	sort.Strings(out)
	return out
}

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) { return "run-1", nil }

type pipelineFixture struct {
	harvester *MockHarvester
	fetcher   *MockFetcher
	converter *MockConverter
	extractor *stubExtractor
	workspace *memWorkspace
	dataset   *memDataset
	logger    *zap.Logger
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		harvester: &MockHarvester{},
		fetcher:   &MockFetcher{},
		converter: &MockConverter{},
		extractor: &stubExtractor{fail: map[string]bool{}, rename: map[string]string{}},
		workspace: &memWorkspace{},
		dataset:   &memDataset{},
	}
}

func (f *pipelineFixture) pipeline(t *testing.T, cfg PipelineConfig) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, PipelineDeps{
		Harvester: f.harvester,
		Fetcher:   f.fetcher,
		Workspace: f.workspace,
		Converter: f.converter,
		Extractor: f.extractor,
		Dataset:   f.dataset,
		IDs:       fakeIDs{},
	}, f.logger)
	require.NoError(t, err)
	return p
}

// expectDocument wires a successful download and conversion for name.
func (f *pipelineFixture) expectDocument(name string) {
	f.fetcher.On("Fetch", mock.Anything, "https://host/docs/"+name).Return([]byte("%PDF"), nil).Once()
	f.converter.On("Convert", mock.Anything, "/raw/"+name).Return("/converted/"+RawToConverted(name), nil).Once()
}

func docURLs(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, "https://host/docs/"+n)
	}
	return out
}

func TestPipelineRun(t *testing.T) {
	t.Parallel()

	t.Run("skips persisted documents", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.dataset.records = []Record{{Filename: "a0001-1.png"}}
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("a.pdf", "b.pdf"), nil)
		f.expectDocument("b.pdf")

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 25, Workers: 1}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 1, stats.Scheduled)
		require.Equal(t, 1, stats.RowsWritten)
		require.Equal(t, []string{"b.pdf"}, f.workspace.written)
		require.Equal(t, []string{"a0001-1.png", "b0001-1.png"}, f.dataset.filenames())
		f.fetcher.AssertExpectations(t)
		f.converter.AssertExpectations(t)
	})

	t.Run("flushes full chunks and the remainder", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		names := make([]string, 0, 57)
		for i := range 57 {
			name := fmt.Sprintf("IOE%04d.pdf", i)
			names = append(names, name)
			f.expectDocument(name)
		}
		f.harvester.On("Harvest", mock.Anything).Return(docURLs(names...), nil)

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 25, Workers: 4}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 57, stats.RowsWritten)
		require.Equal(t, 3, stats.Flushes)
		sizes := make([]int, 0, len(f.dataset.chunks))
		for _, c := range f.dataset.chunks {
			sizes = append(sizes, len(c))
		}
		require.Equal(t, []int{25, 25, 7}, sizes)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("a.pdf", "b.pdf"), nil)
		f.expectDocument("a.pdf")
		f.expectDocument("b.pdf")
		p := f.pipeline(t, PipelineConfig{ChunkSize: 1, Workers: 2})

		_, err := p.Run(context.Background())
		require.NoError(t, err)
		stats, err := p.Run(context.Background())
		require.NoError(t, err)

		require.Zero(t, stats.Scheduled)
		require.Zero(t, stats.RowsWritten)
		require.Len(t, f.dataset.records, 2)
		f.fetcher.AssertNumberOfCalls(t, "Fetch", 2)
	})

	t.Run("isolates per-document failures", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("bad.pdf", "broken.pdf", "blurry.pdf", "ok.pdf"), nil)
		f.fetcher.On("Fetch", mock.Anything, "https://host/docs/bad.pdf").Return(nil, errors.New("connection reset")).Once()
		f.fetcher.On("Fetch", mock.Anything, "https://host/docs/broken.pdf").Return([]byte("junk"), nil).Once()
		f.converter.On("Convert", mock.Anything, "/raw/broken.pdf").Return("", errors.New("page count: malformed")).Once()
		f.expectDocument("blurry.pdf")
		f.extractor.fail["blurry0001-1.png"] = true
		f.expectDocument("ok.pdf")

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 25, Workers: 2}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 3, stats.Skipped)
		require.Equal(t, 1, stats.RowsWritten)
		require.Equal(t, []string{"ok0001-1.png"}, f.dataset.filenames())
		f.fetcher.AssertExpectations(t)
		f.converter.AssertExpectations(t)
	})

	t.Run("reuses local files", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.workspace.converted = []string{"a0001-1.png"}
		f.workspace.raw = []string{"b.pdf"}
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("a.pdf", "b.pdf"), nil)
		f.converter.On("Convert", mock.Anything, "/raw/b.pdf").Return("/converted/b0001-1.png", nil).Once()

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 25, Workers: 1}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 2, stats.RowsWritten)
		require.Zero(t, stats.Downloaded)
		require.Equal(t, 1, stats.Converted)
		f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
		require.ElementsMatch(t, []string{"a0001-1.png", "b0001-1.png"}, f.extractor.calls)
	})

	t.Run("failed flush does not stop the run", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.dataset.failOn = 1
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("a.pdf", "b.pdf"), nil)
		f.expectDocument("a.pdf")
		f.expectDocument("b.pdf")

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 1, Workers: 1}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 1, stats.Failed)
		require.Equal(t, 1, stats.RowsWritten)
	})

	t.Run("failed flush counts and logs every dropped record", func(t *testing.T) {
		t.Parallel()
		core, logs := observer.New(zap.ErrorLevel)
		f := newFixture()
		f.logger = zap.New(core)
		f.dataset.failOn = 1
		names := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
		for _, n := range names {
			f.expectDocument(n)
		}
		f.harvester.On("Harvest", mock.Anything).Return(docURLs(names...), nil)

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 3, Workers: 1}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 3, stats.Failed)
		require.Equal(t, 2, stats.RowsWritten)
		require.Len(t, f.dataset.records, 2)

		dropped := logs.FilterMessage("Dropped chunk; documents will be retried next run").All()
		require.Len(t, dropped, 1)
		fields := dropped[0].ContextMap()
		require.EqualValues(t, 3, fields["rows"])
		require.Len(t, fields["filenames"], 3)
	})

	t.Run("duplicate extraction is persisted once", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		f.extractor.rename["b0001-1.png"] = "a0001-1.png"
		f.harvester.On("Harvest", mock.Anything).Return(docURLs("a.pdf", "b.pdf"), nil)
		f.expectDocument("a.pdf")
		f.expectDocument("b.pdf")

		stats, err := f.pipeline(t, PipelineConfig{ChunkSize: 25, Workers: 1}).Run(context.Background())
		require.NoError(t, err)

		require.Equal(t, 1, stats.Duplicates)
		require.Equal(t, 1, stats.RowsWritten)
		require.Zero(t, stats.Failed)
		require.Equal(t, []string{"a0001-1.png"}, f.dataset.filenames())
	})
}

func TestPipelineRunAbortsOnHarvestError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.harvester.On("Harvest", mock.Anything).Return([]string(nil), context.Canceled)

	_, err := f.pipeline(t, PipelineConfig{ChunkSize: 1, Workers: 1}).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, strings.Contains(err.Error(), "harvest"))
}

func TestNewPipelineValidates(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineConfig{ChunkSize: 0, Workers: 1}, PipelineDeps{}, nil)
	require.ErrorContains(t, err, "chunk_size")

	_, err = NewPipeline(PipelineConfig{ChunkSize: 1, Workers: 1}, PipelineDeps{}, nil)
	require.ErrorContains(t, err, "harvester")
}
