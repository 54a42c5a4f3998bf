// Package engine walks a paginated listing page by page and feeds each
// page's article links through the worker pool.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
	"github.com/JakeFAU/article-harvester/internal/extract"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/worker"
)

// State names a step of the crawl loop.
type State string

// Crawl loop states.
const (
	StateAwaitingPage       State = "awaiting_page"
	StateFetchingLinks      State = "fetching_links"
	StateDispatchingWorkers State = "dispatching_workers"
	StateAwaitingResults    State = "awaiting_results"
	StateResolvingNextPage  State = "resolving_next_page"
	StateTerminated         State = "terminated"
)

// ErrInvalidMaxPages is returned when Run is asked for fewer than one page.
var ErrInvalidMaxPages = errors.New("max pages must be at least 1")

// NextPager finds the listing page after the current one.
type NextPager interface {
	Next(ctx context.Context, currentURL string, doc *goquery.Document) (string, bool)
}

// Pool runs one page worth of article tasks and blocks until they finish.
type Pool interface {
	Run(ctx context.Context, tasks []worker.Task, handle func(worker.Outcome)) int
}

// Pauser waits between listing pages.
type Pauser interface {
	Pause(ctx context.Context) error
}

// IDGenerator names crawl runs.
type IDGenerator interface {
	NewID() (string, error)
}

// Engine coordinates a crawl. Pages are strictly sequential; articles on a
// page run in parallel and all finish before the next page is fetched.
type Engine struct {
	fetcher crawler.Fetcher
	pager   NextPager
	pool    Pool
	limiter crawler.Limiter
	pauser  Pauser
	ids     IDGenerator
	logger  *zap.Logger
}

// New constructs an Engine. limiter, pauser and ids are optional.
func New(
	fetcher crawler.Fetcher,
	pager NextPager,
	pool Pool,
	limiter crawler.Limiter,
	pauser Pauser,
	ids IDGenerator,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher: fetcher,
		pager:   pager,
		pool:    pool,
		limiter: limiter,
		pauser:  pauser,
		ids:     ids,
		logger:  logger,
	}
}

// run carries the state of one Run call.
type run struct {
	id      string
	forced  string
	totals  crawler.Accumulator
	visited map[string]struct{}
	logger  *zap.Logger
}

func (r *run) transition(state State, fields ...zap.Field) {
	r.logger.Debug("crawl state", append([]zap.Field{zap.String("state", string(state))}, fields...)...)
}

// Run crawls from startURL until maxPages listing pages have been visited
// or pagination runs out. Per-article failures never stop the run; a
// listing page that cannot be fetched or parsed ends it. The returned
// stats are always valid, including when an error is returned.
func (e *Engine) Run(ctx context.Context, startURL string, maxPages int, forcedCategory string) (crawler.Stats, error) {
	if startURL == "" {
		return crawler.Stats{}, crawler.ErrEmptyURL
	}
	if maxPages < 1 {
		return crawler.Stats{}, ErrInvalidMaxPages
	}

	r := &run{
		id:      e.newRunID(),
		forced:  forcedCategory,
		visited: make(map[string]struct{}),
	}
	r.logger = e.logger.With(zap.String("run_id", r.id))
	if forcedCategory != "" {
		r.logger = r.logger.With(zap.String("category", forcedCategory))
	}
	r.logger.Info("crawl started", zap.String("url", startURL), zap.Int("max_pages", maxPages))

	err := e.loop(ctx, r, startURL, maxPages)
	stats := r.totals.Snapshot()
	r.logger.Info("crawl finished",
		zap.Int("pages_visited", stats.PagesVisited),
		zap.Int("links_found", stats.LinksFound),
		zap.Int("inserted", stats.Inserted),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, err
}

func (e *Engine) loop(ctx context.Context, r *run, current string, maxPages int) error {
	for page := 1; ; page++ {
		r.transition(StateAwaitingPage, zap.Int("page", page), zap.String("url", current))
		if err := ctx.Err(); err != nil {
			r.transition(StateTerminated, zap.String("reason", "canceled"))
			return fmt.Errorf("crawl canceled: %w", err)
		}
		if _, seen := r.visited[current]; seen {
			r.logger.Warn("pagination cycle detected", zap.String("url", current))
			r.transition(StateTerminated, zap.String("reason", "cycle"))
			return nil
		}
		r.visited[current] = struct{}{}

		r.transition(StateFetchingLinks, zap.Int("page", page))
		listing, doc, links, err := e.fetchListing(ctx, current)
		if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
			r.transition(StateTerminated, zap.String("reason", "canceled"))
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return fmt.Errorf("crawl canceled: %w", err)
		}
		r.totals.Add(crawler.Stats{PagesVisited: 1, LinksFound: len(links)})
		if err != nil {
			metrics.ObservePage(current, "failed")
			r.logger.Error("listing page failed", zap.String("url", current), zap.Int("page", page), zap.Error(err))
			r.transition(StateTerminated, zap.String("reason", "listing_failed"))
			return nil
		}
		metrics.ObservePage(current, "ok")
		r.logger.Info("listing page fetched",
			zap.String("url", current),
			zap.Int("page", page),
			zap.Int("links", len(links)),
		)

		r.transition(StateDispatchingWorkers, zap.Int("tasks", len(links)))
		pageStats := e.dispatch(ctx, r, links)
		r.totals.Add(pageStats)
		r.transition(StateAwaitingResults,
			zap.Int("inserted", pageStats.Inserted),
			zap.Int("updated", pageStats.Updated),
			zap.Int("skipped", pageStats.Skipped),
			zap.Int("failed", pageStats.Failed),
		)

		if page >= maxPages {
			r.transition(StateTerminated, zap.String("reason", "page_limit"))
			return nil
		}

		r.transition(StateResolvingNextPage)
		next, ok := e.pager.Next(ctx, listing.BaseURL(), doc)
		if !ok {
			r.logger.Info("no next page", zap.String("url", current))
			r.transition(StateTerminated, zap.String("reason", "pagination_exhausted"))
			return nil
		}

		if e.pauser != nil {
			if err := e.pauser.Pause(ctx); err != nil {
				r.transition(StateTerminated, zap.String("reason", "canceled"))
				return fmt.Errorf("crawl canceled: %w", err)
			}
		}
		current = next
	}
}

// fetchListing fetches and parses one listing page and returns its
// article links, de-duplicated in document order.
func (e *Engine) fetchListing(ctx context.Context, url string) (crawler.RawPage, *goquery.Document, []string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, url); err != nil {
			return crawler.RawPage{}, nil, nil, err
		}
	}
	listing, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return crawler.RawPage{}, nil, nil, err
	}
	doc, err := extract.Parse(listing)
	if err != nil {
		return crawler.RawPage{}, nil, nil, err
	}
	return listing, doc, dedupe(extract.LinksFromDocument(doc, listing.BaseURL())), nil
}

func (e *Engine) dispatch(ctx context.Context, r *run, links []string) crawler.Stats {
	if len(links) == 0 {
		return crawler.Stats{}
	}
	tasks := make([]worker.Task, 0, len(links))
	for _, link := range links {
		tasks = append(tasks, worker.Task{URL: link, ForcedCategory: r.forced, RunID: r.id})
	}
	var pageStats crawler.Stats
	dispatched := e.pool.Run(ctx, tasks, func(out worker.Outcome) {
		pageStats = pageStats.Merge(out.Delta())
	})
	if dispatched < len(tasks) {
		r.logger.Warn("page interrupted before all articles were dispatched",
			zap.Int("dispatched", dispatched),
			zap.Int("total", len(tasks)),
		)
	}
	return pageStats
}

func (e *Engine) newRunID() string {
	if e.ids == nil {
		return ""
	}
	id, err := e.ids.NewID()
	if err != nil {
		e.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

// Category is one listing to crawl with its forced category label.
type Category struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// CategoryResult reports one category of a RunCategories call.
type CategoryResult struct {
	Category Category
	Stats    crawler.Stats
	Err      error
}

// RunCategories crawls each category listing in turn, forcing its name as
// the article category. A failing category is recorded and the next one
// starts; only cancellation stops the sequence. The second return value is
// the sum over all categories.
func (e *Engine) RunCategories(ctx context.Context, categories []Category, maxPages int) ([]CategoryResult, crawler.Stats, error) {
	if maxPages < 1 {
		return nil, crawler.Stats{}, ErrInvalidMaxPages
	}
	results := make([]CategoryResult, 0, len(categories))
	var total crawler.Stats
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return results, total, fmt.Errorf("crawl canceled: %w", err)
		}
		stats, err := e.Run(ctx, category.URL, maxPages, category.Name)
		total = total.Merge(stats)
		results = append(results, CategoryResult{Category: category, Stats: stats, Err: err})
		if err != nil {
			if ctx.Err() != nil {
				return results, total, err
			}
			e.logger.Error("category crawl failed", zap.String("category", category.Name), zap.Error(err))
			continue
		}
		e.logger.Info("category crawl finished",
			zap.String("category", category.Name),
			zap.Int("pages_visited", stats.PagesVisited),
			zap.Int("inserted", stats.Inserted),
			zap.Int("updated", stats.Updated),
		)
	}
	return results, total, nil
}
