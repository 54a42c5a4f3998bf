package crawler

import (
	"math"
	"strings"
	"time"
)

const (
	// UntitledMarker is stored as the title when an article page has none.
	UntitledMarker = "Sans titre"
	// PrimaryImageAlt labels the image entry synthesized from the primary image.
	PrimaryImageAlt = "Image principale"
)

// RawPage is the markup returned by a Fetcher.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// BaseURL returns the URL relative links on the page resolve against.
func (p RawPage) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}

// Image is an in-article image reference.
type Image struct {
	URL string `json:"url" bson:"url"`
	Alt string `json:"alt" bson:"alt"`
}

// ArticleRecord is the unit of extraction and persistence. Optional fields
// are nil when the page did not provide them.
type ArticleRecord struct {
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	PublishedAt     *string   `json:"published_at"`
	Author          *string   `json:"author"`
	Summary         string    `json:"summary"`
	PrimaryImageURL *string   `json:"primary_image_url"`
	Category        *string   `json:"category"`
	SubCategory     *string   `json:"sub_category"`
	Tags            []string  `json:"tags"`
	Images          []Image   `json:"images"`
	ExtractedAt     time.Time `json:"extracted_at"`
}

// Normalized returns a copy with nil slices replaced by empty ones and a
// blank title replaced by UntitledMarker.
func (r ArticleRecord) Normalized() ArticleRecord {
	if strings.TrimSpace(r.Title) == "" {
		r.Title = UntitledMarker
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Images == nil {
		r.Images = []Image{}
	}
	return r
}

// StringValue dereferences an optional field, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionalString returns nil for blank input and a pointer to the trimmed
// value otherwise.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// UpsertResult reports which branch an Upsert took.
type UpsertResult struct {
	Inserted bool
	Updated  bool
}

// SortField names a column the read API may sort on.
type SortField string

// Sortable fields.
const (
	SortByPublishedAt SortField = "published_at"
	SortByTitle       SortField = "title"
	SortByExtractedAt SortField = "extracted_at"
)

// ArticleQuery filters and paginates stored articles.
type ArticleQuery struct {
	Author      string
	Category    string
	SubCategory string
	Title       string
	Page        int
	Limit       int
	SortBy      SortField
	Descending  bool
}

// Page size bounds for List.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// WithDefaults fills unset paging and sort fields and clamps Limit.
func (q ArticleQuery) WithDefaults() ArticleQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = SortByPublishedAt
	}
	return q
}

// Valid reports whether f is a sortable field.
func (f SortField) Valid() bool {
	switch f {
	case SortByPublishedAt, SortByTitle, SortByExtractedAt:
		return true
	default:
		return false
	}
}

// Offset returns the number of records to skip for the requested page.
// It saturates at math.MaxInt instead of overflowing.
func (q ArticleQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// ArticlePage is one page of List results.
type ArticlePage struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Articles []ArticleRecord `json:"articles"`
}

// TotalPages returns the page count implied by Total and Limit.
func (p ArticlePage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// ArticleEvent is published after every successful write.
type ArticleEvent struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Category    *string   `json:"category"`
	Inserted    bool      `json:"inserted"`
	SnapshotURI string    `json:"snapshot_uri,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// Kind returns "inserted" or "updated".
func (e ArticleEvent) Kind() string {
	if e.Inserted {
		return "inserted"
	}
	return "updated"
}
