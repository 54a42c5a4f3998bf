package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-harvester/internal/config"
)

func quietEnv(t *testing.T) string {
	t.Helper()
	t.Setenv("HARVESTER_CRAWLER_PAGE_DELAY_MIN_MS", "0")
	t.Setenv("HARVESTER_CRAWLER_PAGE_DELAY_MAX_MS", "0")
	t.Setenv("HARVESTER_LOGGING_LEVEL", "error")
	t.Setenv("HARVESTER_LOGGING_DEVELOPMENT", "false")
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestCrawlSingleURLPrintsReport(t *testing.T) {
	envFile := quietEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/listing/" {
			_, _ = w.Write([]byte(`<html><body>
<article><h3 class="entry-title"><a href="/a/1/">One</a></h3></article>
<article><h3 class="entry-title"><a href="/a/2/">Two</a></h3></article>
</body></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><body><h1 class="entry-title">Story</h1></body></html>`))
	}))
	defer srv.Close()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"crawl",
		"--env-file", envFile,
		"--url", srv.URL + "/listing/",
		"--category", "Social",
		"--max-pages", "1",
	})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var report crawlReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	require.Len(t, report.Categories, 1)
	require.Equal(t, "Social", report.Categories[0].Name)
	require.Equal(t, 1, report.Total.PagesVisited)
	require.Equal(t, 2, report.Total.Inserted)
	require.Empty(t, report.Categories[0].Error)
}

func TestRootReportsInitFailure(t *testing.T) {
	envFile := quietEnv(t)
	original := newApp
	t.Cleanup(func() { newApp = original })
	newApp = func(context.Context, config.Config) (App, error) {
		return nil, errors.New("store unreachable")
	}

	root := newRootCmd()
	root.SetArgs([]string{"crawl", "--env-file", envFile, "--url", "https://blog.example.com/"})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "store unreachable")
}

func TestRootReportsBadConfig(t *testing.T) {
	envFile := quietEnv(t)
	t.Setenv("HARVESTER_STORE_BACKEND", "sqlite")

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--env-file", envFile})
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.backend")
}
