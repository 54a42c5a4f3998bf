// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
	"github.com/JakeFAU/article-harvester/internal/metrics"
)

// Headers sent with every request so the blog serves its regular markup.
const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	DefaultAcceptLanguage = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"
	DefaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	headers       http.Header
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// result is filled in by the collector callbacks of a single request.
type result struct {
	page   crawler.RawPage
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = DefaultAcceptLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.UserAgent = cfg.UserAgent
	c.WithTransport(newHTTPTransport(cfg.Timeout))
	c.SetRequestTimeout(cfg.Timeout)

	headers := http.Header{}
	headers.Set("Accept-Language", cfg.AcceptLanguage)
	headers.Set("Accept", DefaultAccept)

	return &Fetcher{
		cfg:           cfg,
		headers:       headers,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET. Non-2xx responses are reported as a
// *crawler.FetchError with CauseHTTPStatus.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.RawPage, error) {
	start := time.Now()
	res := &result{}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, res)

	completed, err := f.runCollector(ctx, func() error { return collector.Visit(url) })
	if !completed {
		ferr := crawler.NewFetchError(url, err)
		metrics.ObserveFetch(http.MethodGet, string(ferr.Cause), time.Since(start))
		return crawler.RawPage{}, ferr
	}
	if ferr := f.classify(url, res, err); ferr != nil {
		metrics.ObserveFetch(http.MethodGet, string(ferr.Cause), time.Since(start))
		f.logger.Debug("fetch failed", zap.String("url", url), zap.Error(ferr))
		return crawler.RawPage{}, ferr
	}
	metrics.ObserveFetch(http.MethodGet, "ok", res.page.Duration)
	res.page.URL = url
	return res.page, nil
}

// Probe issues a HEAD request and returns the status code.
func (f *Fetcher) Probe(ctx context.Context, url string) (int, error) {
	start := time.Now()
	res := &result{}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, start, res)

	completed, err := f.runCollector(ctx, func() error { return collector.Head(url) })
	if !completed {
		ferr := crawler.NewFetchError(url, err)
		metrics.ObserveFetch(http.MethodHead, string(ferr.Cause), time.Since(start))
		return 0, ferr
	}
	if ferr := f.classify(url, res, err); ferr != nil {
		metrics.ObserveFetch(http.MethodHead, string(ferr.Cause), time.Since(start))
		return ferr.StatusCode, ferr
	}
	metrics.ObserveFetch(http.MethodHead, "ok", time.Since(start))
	return res.status, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, res *result) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.page = crawler.RawPage{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			res.status = r.StatusCode
		}
		res.err = err
	})
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if r.Headers == nil {
		return
	}
	for key, values := range f.headers {
		for _, v := range values {
			r.Headers.Set(key, v)
		}
	}
}

// runCollector reports completed=false when ctx ended first; the callbacks
// may still be running in that case and the result must not be read.
func (f *Fetcher) runCollector(ctx context.Context, visit func() error) (completed bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("colly fetch canceled: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		return true, err
	}
}

func (f *Fetcher) classify(url string, res *result, visitErr error) *crawler.FetchError {
	if res.status != 0 && (res.status < 200 || res.status > 299) {
		return crawler.NewStatusError(url, res.status)
	}
	if visitErr != nil {
		return crawler.NewFetchError(url, visitErr)
	}
	if res.err != nil {
		return crawler.NewFetchError(url, res.err)
	}
	if res.status == 0 {
		return crawler.NewFetchError(url, errors.New("colly fetch produced no response"))
	}
	return nil
}

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}
