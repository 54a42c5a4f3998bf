package pagination

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	status int
	err    error
	calls  []string
}

func (s *stubProber) Probe(_ context.Context, url string) (int, error) {
	s.calls = append(s.calls, url)
	return s.status, s.err
}

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	require.NoError(t, err)
	return doc
}

func TestNextStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current string
		body    string
		want    string
		ok      bool
	}{
		{
			name:    "nextpostslink",
			current: "https://blog.example.com/tech/",
			body:    `<div class="wp-pagenavi"><a class="nextpostslink" href="/tech/page/2/">»</a></div>`,
			want:    "https://blog.example.com/tech/page/2/",
			ok:      true,
		},
		{
			name:    "rel next link element",
			current: "https://blog.example.com/tech/",
			body:    `<html><head><link rel="next" href="https://blog.example.com/tech/page/2/"></head><body></body></html>`,
			want:    "https://blog.example.com/tech/page/2/",
			ok:      true,
		},
		{
			name:    "anchor after current",
			current: "https://blog.example.com/tech/page/2/",
			body: `<nav class="nav-links"><a href="/tech/">1</a><span class="page-numbers current">2</span>` +
				`<a href="/tech/page/3/">3</a><a href="/tech/page/9/">9</a></nav>`,
			want: "https://blog.example.com/tech/page/3/",
			ok:   true,
		},
		{
			name:    "last anchor guess without current marker",
			current: "https://blog.example.com/tech/",
			body:    `<div class="pagination"><a href="/tech/page/2/">2</a><a href="/tech/page/7/">7</a></div>`,
			want:    "https://blog.example.com/tech/page/7/",
			ok:      true,
		},
		{
			name:    "link text vocabulary",
			current: "https://blog.example.com/tech/",
			body:    `<p><a href="/about/">A propos</a><a href="/tech/?p=2">Page suivante</a></p>`,
			want:    "https://blog.example.com/tech/?p=2",
			ok:      true,
		},
		{
			name:    "increment page number",
			current: "https://blog.example.com/tech/page/3/",
			body:    `<html><body></body></html>`,
			want:    "https://blog.example.com/tech/page/4/",
			ok:      true,
		},
		{
			name:    "append page two",
			current: "https://blog.example.com/tech/",
			body:    `<html><body></body></html>`,
			want:    "https://blog.example.com/tech/page/2/",
			ok:      true,
		},
		{
			name:    "page segment not at end",
			current: "https://blog.example.com/page/about/",
			body:    `<html><body></body></html>`,
			ok:      false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New(Config{}, nil, nil)
			got, ok := r.Next(context.Background(), tt.current, mustDoc(t, tt.body))
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSelfLinkFallsThrough(t *testing.T) {
	t.Parallel()

	body := `<a class="nextpostslink" href="/tech/page/3/">next</a>`
	r := New(Config{}, nil, nil)
	got, ok := r.Next(context.Background(), "https://blog.example.com/tech/page/3/", mustDoc(t, body))
	require.True(t, ok)
	require.Equal(t, "https://blog.example.com/tech/page/4/", got)
}

func TestProbeRejectsGuess(t *testing.T) {
	t.Parallel()

	prober := &stubProber{status: http.StatusNotFound}
	r := New(Config{ProbeGuesses: true}, prober, nil)
	_, ok := r.Next(context.Background(), "https://blog.example.com/tech/page/3/", mustDoc(t, "<html></html>"))
	require.False(t, ok)
	require.Equal(t, []string{"https://blog.example.com/tech/page/4/"}, prober.calls)
}

func TestProbeErrorRejectsGuess(t *testing.T) {
	t.Parallel()

	prober := &stubProber{err: errors.New("boom")}
	r := New(Config{ProbeGuesses: true}, prober, nil)
	_, ok := r.Next(context.Background(), "https://blog.example.com/tech/", mustDoc(t, "<html></html>"))
	require.False(t, ok)
}

func TestProbeSkippedForExplicitLink(t *testing.T) {
	t.Parallel()

	prober := &stubProber{status: http.StatusNotFound}
	r := New(Config{ProbeGuesses: true}, prober, nil)
	got, ok := r.Next(context.Background(), "https://blog.example.com/tech/",
		mustDoc(t, `<a class="next" href="/tech/page/2/">2</a>`))
	require.True(t, ok)
	require.Equal(t, "https://blog.example.com/tech/page/2/", got)
	require.Empty(t, prober.calls)
}

func TestProbeAcceptsGuess(t *testing.T) {
	t.Parallel()

	prober := &stubProber{status: http.StatusOK}
	r := New(Config{ProbeGuesses: true}, prober, nil)
	got, ok := r.Next(context.Background(), "https://blog.example.com/tech/page/3/", mustDoc(t, "<html></html>"))
	require.True(t, ok)
	require.Equal(t, "https://blog.example.com/tech/page/4/", got)
}

func TestNilDocumentUsesURLArithmetic(t *testing.T) {
	t.Parallel()

	got, ok := New(Config{}, nil, nil).Next(context.Background(), "https://blog.example.com/tech/page/3/", nil)
	require.True(t, ok)
	require.Equal(t, "https://blog.example.com/tech/page/4/", got)
}
