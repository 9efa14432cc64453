package scraper

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors shared by stores, the orchestrator and the API.
var (
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrNotFound         = errors.New("record not found")
	ErrStaleRecord      = errors.New("record is no longer in an entry state")
	ErrExtraction       = errors.New("extraction failed")
	ErrEmptyContent     = errors.New("no article content found")
)

// RecordStore persists candidate records.
type RecordStore interface {
	// ListByStatus returns every record whose status equals status.
	ListByStatus(ctx context.Context, status Status) ([]CandidateRecord, error)
	// Transition atomically applies t to the record with the given id, but
	// only while the record is still in an entry state. Otherwise it returns
	// ErrStaleRecord (or ErrNotFound).
	Transition(ctx context.Context, id string, t Transition) error
	Create(ctx context.Context, rec CandidateRecord) (string, error)
	Get(ctx context.Context, id string) (CandidateRecord, error)
	// Reset moves every record in one of from back to reprocess.
	Reset(ctx context.Context, from []Status) (int, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// RunLogStore persists run logs.
type RunLogStore interface {
	CreateRun(ctx context.Context, run RunLog) (string, error)
	FinishRun(ctx context.Context, id string, result RunResult) error
	GetRun(ctx context.Context, id string) (RunLog, error)
	ListRuns(ctx context.Context, limit int) ([]RunLog, error)
}

// Extractor fetches a URL and parses it into an article.
type Extractor interface {
	Extract(ctx context.Context, url string) (Article, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes scrape notifications downstream.
type Publisher interface {
	Publish(ctx context.Context, event ScrapedEvent) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
