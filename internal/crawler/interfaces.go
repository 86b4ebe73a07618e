package crawler

import (
	"context"
	"time"
)

// Fetcher issues a GET and returns the status code and body.
// A non-nil error means the transport failed; HTTP error statuses are
// reported through FetchResponse.StatusCode.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RecordStore persists company records and enforces e-mail uniqueness.
type RecordStore interface {
	// Insert stores the record or returns ErrDuplicateKey when the e-mail exists.
	Insert(ctx context.Context, record CompanyRecord) error
	Exists(ctx context.Context, email string) (bool, error)
}

// PageSource returns the entity URLs listed on one listing page.
type PageSource interface {
	FetchPage(ctx context.Context, page int) ([]string, error)
}

// EntityProcessor fetches, extracts and persists one entity.
type EntityProcessor interface {
	FetchEntity(ctx context.Context, url string) (Outcome, error)
}

// Clock returns the current time and schedules backoff waits (useful for testing).
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// IDGenerator produces crawl run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
