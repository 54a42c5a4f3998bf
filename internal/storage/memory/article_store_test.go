package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func record(url, title string) crawler.ArticleRecord {
	return crawler.ArticleRecord{URL: url, Title: title}
}

func TestUpsertIdempotent(t *testing.T) {
	t.Parallel()

	store := NewArticleStore(newClock())
	ctx := context.Background()
	rec := record("https://blog.example.com/a/", "A")

	first, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, crawler.UpsertResult{Inserted: true}, first)
	stamped, _ := store.Get(rec.URL)

	second, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	require.Equal(t, crawler.UpsertResult{Updated: true}, second)
	require.Equal(t, 1, store.Len())

	restamped, _ := store.Get(rec.URL)
	require.True(t, restamped.ExtractedAt.After(stamped.ExtractedAt))

	exists, err := store.Exists(ctx, rec.URL)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestUpsertReplacesAllFields(t *testing.T) {
	t.Parallel()

	store := NewArticleStore(nil)
	ctx := context.Background()
	author := "Jane"
	_, err := store.Upsert(ctx, crawler.ArticleRecord{URL: "u", Title: "Old", Author: &author, Tags: []string{"x"}})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, crawler.ArticleRecord{URL: "u", Title: "New"})
	require.NoError(t, err)

	got, ok := store.Get("u")
	require.True(t, ok)
	require.Equal(t, "New", got.Title)
	require.Nil(t, got.Author)
	require.Empty(t, got.Tags)
	require.NotNil(t, got.Images)
}

func TestConcurrentUpsertSingleInsert(t *testing.T) {
	t.Parallel()

	store := NewArticleStore(nil)
	ctx := context.Background()
	const n = 32

	var wg sync.WaitGroup
	results := make(chan crawler.UpsertResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Upsert(ctx, record("https://blog.example.com/same/", "Same"))
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	inserted := 0
	for res := range results {
		if res.Inserted {
			inserted++
		}
	}
	require.Equal(t, 1, inserted)
	require.Equal(t, 1, store.Len())
}

func TestUpsertRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewArticleStore(nil).Upsert(context.Background(), crawler.ArticleRecord{Title: "x"})
	require.Error(t, err)
	require.True(t, errors.Is(err, crawler.ErrEmptyURL))
}

func TestListFiltersSortsAndPages(t *testing.T) {
	t.Parallel()

	store := NewArticleStore(newClock())
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		date := fmt.Sprintf("2024-01-0%d", i)
		category := "Tech"
		if i%2 == 0 {
			category = "Web"
		}
		author := "Jane Doe"
		if i == 5 {
			author = "John"
		}
		_, err := store.Upsert(ctx, crawler.ArticleRecord{
			URL:         fmt.Sprintf("https://blog.example.com/%d/", i),
			Title:       fmt.Sprintf("Post %d", i),
			PublishedAt: &date,
			Author:      &author,
			Category:    &category,
		})
		require.NoError(t, err)
	}

	page, err := store.List(ctx, crawler.ArticleQuery{Category: "Tech", Descending: true})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Equal(t, crawler.DefaultPageSize, page.Limit)
	require.Equal(t, []string{"Post 5", "Post 3", "Post 1"}, titles(page.Articles))

	page, err = store.List(ctx, crawler.ArticleQuery{Author: "jane", SortBy: crawler.SortByTitle, Page: 2, Limit: 3})
	require.NoError(t, err)
	require.Equal(t, 4, page.Total)
	require.Equal(t, 2, page.TotalPages())
	require.Equal(t, []string{"Post 4"}, titles(page.Articles))

	page, err = store.List(ctx, crawler.ArticleQuery{Title: "post 2"})
	require.NoError(t, err)
	require.Equal(t, []string{"Post 2"}, titles(page.Articles))

	page, err = store.List(ctx, crawler.ArticleQuery{Page: 9})
	require.NoError(t, err)
	require.Equal(t, 5, page.Total)
	require.Empty(t, page.Articles)

	page, err = store.List(ctx, crawler.ArticleQuery{Page: math.MaxInt, Limit: crawler.MaxPageSize})
	require.NoError(t, err)
	require.Empty(t, page.Articles)
}

func TestSubCategories(t *testing.T) {
	t.Parallel()

	store := NewArticleStore(nil)
	ctx := context.Background()
	add := func(url, category, sub string) {
		_, err := store.Upsert(ctx, crawler.ArticleRecord{
			URL:         url,
			Category:    crawler.OptionalString(category),
			SubCategory: crawler.OptionalString(sub),
		})
		require.NoError(t, err)
	}
	add("a", "Tech", "IA")
	add("b", "Tech", "IA")
	add("c", "Tech", "Cloud")
	add("d", "Web", "SEO")
	add("e", "Web", "")

	all, err := store.SubCategories(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"Cloud", "IA", "SEO"}, all)

	tech, err := store.SubCategories(ctx, "Tech")
	require.NoError(t, err)
	require.Equal(t, []string{"Cloud", "IA"}, tech)
}

func titles(records []crawler.ArticleRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Title)
	}
	return out
}
