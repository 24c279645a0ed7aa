package crawler

import (
	"context"
	"io"
	"time"
)

// Harvester lists the document URLs published on the index pages.
type Harvester interface {
	Harvest(ctx context.Context) ([]string, error)
}

// Fetcher downloads a single document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Workspace exposes the flat local directories holding raw and converted files.
type Workspace interface {
	ListRaw() ([]string, error)
	ListConverted() ([]string, error)
	WriteRaw(name string, data []byte) (string, error)
	RawPath(name string) string
	ConvertedPath(name string) string
}

// Converter renders the first page of a raw document to an image and
// returns the image path.
type Converter interface {
	Convert(ctx context.Context, rawPath string) (string, error)
}

// Extractor turns a converted image into a Record.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) (Record, error)
}

// RecordSink receives flushed chunks of records.
type RecordSink interface {
	AppendRecords(ctx context.Context, records []Record) error
}

// RecordSource loads every persisted record.
type RecordSource interface {
	LoadRecords(ctx context.Context) ([]Record, error)
}

// Dataset is the authoritative record store.
type Dataset interface {
	RecordSource
	RecordSink
}

// BlobStore mirrors artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Notification carries a rendered analysis report to a Notifier.
type Notification struct {
	RunID          string        `json:"run_id"`
	Center         ServiceCenter `json:"service_center"`
	Percentile     float64       `json:"percentile"`
	HTMLContent    string        `json:"html_content"`
	AttachmentPath string        `json:"attachment_path"`
	AttachmentURI  string        `json:"attachment_uri,omitempty"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// Notifier delivers analysis reports. It returns a delivery id.
type Notifier interface {
	Notify(ctx context.Context, n Notification) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
