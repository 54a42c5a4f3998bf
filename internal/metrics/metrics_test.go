package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveArticle(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(harvesterArticlesTotal.WithLabelValues("inserted"))
	ObserveArticle("inserted")
	ObserveArticle("inserted")
	if got := testutil.ToFloat64(harvesterArticlesTotal.WithLabelValues("inserted")); got != before+2 {
		t.Errorf("expected harvester_articles_total{inserted} to grow by 2, got %f -> %f", before, got)
	}
}

func TestObservePageSanitizesSite(t *testing.T) {
	before := testutil.ToFloat64(harvesterPagesTotal.WithLabelValues("blog.example.com", "ok"))
	ObservePage("https://Blog.Example.com/tech/page/2/", "ok")
	if got := testutil.ToFloat64(harvesterPagesTotal.WithLabelValues("blog.example.com", "ok")); got != before+1 {
		t.Errorf("expected page counter to grow by 1, got %f -> %f", before, got)
	}
}

func TestObserveFetchAndWorkers(t *testing.T) {
	ObserveFetch("GET", "ok", 120*time.Millisecond)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(harvesterActiveWorkers); got < 1 {
		t.Errorf("expected at least one active worker, got %f", got)
	}
	DecActiveWorkers()
}

func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://www.blogdumoderateur.com/tech/", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
