package crawler

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulatorConcurrentAdds(t *testing.T) {
	t.Parallel()

	var acc Accumulator
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				acc.Add(Stats{Inserted: 1})
				return
			}
			acc.Add(Stats{Updated: 1, Skipped: 1})
		}(i)
	}
	wg.Wait()

	got := acc.Snapshot()
	require.Equal(t, 25, got.Inserted)
	require.Equal(t, 25, got.Updated)
	require.Equal(t, 25, got.Skipped)
	require.Equal(t, 50, got.Processed())
}

func TestStatsMerge(t *testing.T) {
	t.Parallel()

	a := Stats{PagesVisited: 1, LinksFound: 5, Inserted: 3, Failed: 2}
	b := Stats{PagesVisited: 1, LinksFound: 4, Updated: 4}
	require.Equal(t, Stats{PagesVisited: 2, LinksFound: 9, Inserted: 3, Updated: 4, Failed: 2}, a.Merge(b))
}

func TestArticleRecordNormalized(t *testing.T) {
	t.Parallel()

	rec := ArticleRecord{URL: "https://example.com/a", Title: "  "}.Normalized()
	require.Equal(t, UntitledMarker, rec.Title)
	require.NotNil(t, rec.Tags)
	require.NotNil(t, rec.Images)
	require.Empty(t, rec.Tags)
}

func TestOptionalString(t *testing.T) {
	t.Parallel()

	require.Nil(t, OptionalString("   "))
	v := OptionalString("  Tech ")
	require.NotNil(t, v)
	require.Equal(t, "Tech", *v)
	require.Equal(t, "", StringValue(nil))
}

func TestArticleQueryOffset(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ArticleQuery{Page: 1, Limit: 10}.Offset())
	require.Equal(t, 20, ArticleQuery{Page: 3, Limit: 10}.Offset())
	require.Equal(t, math.MaxInt, ArticleQuery{Page: math.MaxInt, Limit: 100}.Offset())
	require.Equal(t, 3, ArticlePage{Total: 21, Limit: 10}.TotalPages())
}

func TestArticleQueryWithDefaults(t *testing.T) {
	t.Parallel()

	q := ArticleQuery{Page: -2, Limit: 500}.WithDefaults()
	require.Equal(t, 1, q.Page)
	require.Equal(t, MaxPageSize, q.Limit)
	require.Equal(t, SortByPublishedAt, q.SortBy)

	q = ArticleQuery{SortBy: SortByTitle}.WithDefaults()
	require.Equal(t, DefaultPageSize, q.Limit)
	require.Equal(t, SortByTitle, q.SortBy)

	require.True(t, SortByExtractedAt.Valid())
	require.False(t, SortField("date").Valid())
}
