// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

// ArticleStore keeps article records in a map keyed by URL.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[string]crawler.ArticleRecord
	clock    crawler.Clock
}

var _ crawler.ArticleStore = (*ArticleStore)(nil)

// NewArticleStore constructs an ArticleStore. A nil clock uses the system clock.
func NewArticleStore(clock crawler.Clock) *ArticleStore {
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	return &ArticleStore{
		articles: make(map[string]crawler.ArticleRecord),
		clock:    clock,
	}
}

// Exists reports whether a record with url is stored.
func (s *ArticleStore) Exists(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articles[url]
	return ok, nil
}

// Upsert inserts the record or replaces the stored one with the same URL.
func (s *ArticleStore) Upsert(_ context.Context, record crawler.ArticleRecord) (crawler.UpsertResult, error) {
	if record.URL == "" {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert", Err: crawler.ErrEmptyURL}
	}
	record = record.Normalized()
	record.Tags = append([]string{}, record.Tags...)
	record.Images = append([]crawler.Image{}, record.Images...)

	s.mu.Lock()
	defer s.mu.Unlock()
	record.ExtractedAt = s.clock.Now()
	_, existed := s.articles[record.URL]
	s.articles[record.URL] = record
	return crawler.UpsertResult{Inserted: !existed, Updated: existed}, nil
}

// Get returns the stored record for url.
func (s *ArticleStore) Get(url string) (crawler.ArticleRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.articles[url]
	return record, ok
}

// Len reports how many records are stored.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}

// List filters, sorts and pages the stored records.
func (s *ArticleStore) List(_ context.Context, query crawler.ArticleQuery) (crawler.ArticlePage, error) {
	query = query.WithDefaults()

	s.mu.RLock()
	matched := make([]crawler.ArticleRecord, 0, len(s.articles))
	for _, record := range s.articles {
		if matches(record, query) {
			matched = append(matched, record)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := sortKey(matched[i], query.SortBy), sortKey(matched[j], query.SortBy)
		if a == b {
			return matched[i].URL < matched[j].URL
		}
		if query.Descending {
			return a > b
		}
		return a < b
	})

	page := crawler.ArticlePage{
		Total:    len(matched),
		Page:     query.Page,
		Limit:    query.Limit,
		Articles: []crawler.ArticleRecord{},
	}
	start := query.Offset()
	if start < 0 || start >= len(matched) {
		return page, nil
	}
	end := start + query.Limit
	if end > len(matched) || end < start {
		end = len(matched)
	}
	page.Articles = append(page.Articles, matched[start:end]...)
	return page, nil
}

// SubCategories returns the distinct non-empty sub-categories, optionally
// restricted to one category.
func (s *ArticleStore) SubCategories(_ context.Context, category string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	out := []string{}
	for _, record := range s.articles {
		if category != "" && crawler.StringValue(record.Category) != category {
			continue
		}
		sub := crawler.StringValue(record.SubCategory)
		if sub == "" {
			continue
		}
		if _, ok := seen[sub]; ok {
			continue
		}
		seen[sub] = struct{}{}
		out = append(out, sub)
	}
	sort.Strings(out)
	return out, nil
}

// Ping always succeeds.
func (s *ArticleStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *ArticleStore) Close(context.Context) error {
	return nil
}

func matches(record crawler.ArticleRecord, q crawler.ArticleQuery) bool {
	if q.Author != "" && !containsFold(crawler.StringValue(record.Author), q.Author) {
		return false
	}
	if q.Category != "" && crawler.StringValue(record.Category) != q.Category {
		return false
	}
	if q.SubCategory != "" && crawler.StringValue(record.SubCategory) != q.SubCategory {
		return false
	}
	if q.Title != "" && !containsFold(record.Title, q.Title) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortKey(record crawler.ArticleRecord, field crawler.SortField) string {
	switch field {
	case crawler.SortByTitle:
		return record.Title
	case crawler.SortByExtractedAt:
		return record.ExtractedAt.UTC().Format("2006-01-02T15:04:05.000000000Z")
	default:
		return crawler.StringValue(record.PublishedAt)
	}
}
