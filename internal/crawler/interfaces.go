package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves pages over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (RawPage, error)
	Prober
}

// Prober checks that a URL resolves without downloading its body.
type Prober interface {
	Probe(ctx context.Context, url string) (int, error)
}

// Extractor turns an article page into a record.
type Extractor interface {
	Extract(page RawPage, url string, forcedCategory string) (ArticleRecord, error)
}

// ArticleStore persists records keyed by URL.
type ArticleStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Upsert(ctx context.Context, record ArticleRecord) (UpsertResult, error)
	List(ctx context.Context, query ArticleQuery) (ArticlePage, error)
	SubCategories(ctx context.Context, category string) ([]string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes upsert notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Limiter paces outbound requests.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
