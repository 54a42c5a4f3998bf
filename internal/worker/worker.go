// Package worker runs the per-article pipeline: skip known URLs, fetch,
// snapshot, extract, upsert and notify.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
	"github.com/JakeFAU/article-harvester/internal/metrics"
)

// Status is the terminal state of one article task.
type Status string

// Task outcomes.
const (
	StatusInserted Status = "inserted"
	StatusUpdated  Status = "updated"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Task is one article URL to process.
type Task struct {
	URL            string
	ForcedCategory string
	RunID          string
}

// Outcome reports what happened to a Task. Err is set only for StatusFailed.
type Outcome struct {
	URL         string
	Status      Status
	Title       string
	Category    string
	SnapshotURI string
	Err         error
}

// Delta converts the outcome into a statistics increment.
func (o Outcome) Delta() crawler.Stats {
	switch o.Status {
	case StatusInserted:
		return crawler.Stats{Inserted: 1}
	case StatusUpdated:
		return crawler.Stats{Updated: 1}
	case StatusSkipped:
		return crawler.Stats{Skipped: 1}
	default:
		return crawler.Stats{Failed: 1}
	}
}

// Snapshotter archives raw article markup.
type Snapshotter interface {
	Save(ctx context.Context, page crawler.RawPage) (string, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives an ArticleEvent per successful write. Empty disables publishing.
	Topic string
	// Refresh re-fetches and overwrites URLs the store already holds instead
	// of skipping them.
	Refresh bool
}

// Worker processes article tasks. It is safe for concurrent use.
type Worker struct {
	fetcher     crawler.Fetcher
	extractor   crawler.Extractor
	store       crawler.ArticleStore
	limiter     crawler.Limiter
	snapshotter Snapshotter
	publisher   crawler.Publisher
	clock       crawler.Clock
	cfg         Config
	logger      *zap.Logger
}

// New constructs a Worker. limiter, snapshotter and publisher are optional.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	store crawler.ArticleStore,
	limiter crawler.Limiter,
	snapshotter Snapshotter,
	publisher crawler.Publisher,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:     fetcher,
		extractor:   extractor,
		store:       store,
		limiter:     limiter,
		snapshotter: snapshotter,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
}

// Process runs the pipeline for one task. It never panics on per-URL
// failures; they are reported through the returned Outcome.
func (w *Worker) Process(ctx context.Context, task Task) Outcome {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("url", task.URL))
	if task.RunID != "" {
		logger = logger.With(zap.String("run_id", task.RunID))
	}

	out := w.process(ctx, task, logger)
	metrics.ObserveArticle(string(out.Status))
	switch out.Status {
	case StatusFailed:
		logger.Error("article failed", zap.Error(out.Err))
	case StatusSkipped:
		logger.Debug("article already stored, skipped")
	default:
		logger.Info("article stored",
			zap.String("status", string(out.Status)),
			zap.String("title", out.Title),
			zap.String("category", out.Category),
		)
	}
	return out
}

func (w *Worker) process(ctx context.Context, task Task, logger *zap.Logger) Outcome {
	out := Outcome{URL: task.URL}
	fail := func(err error) Outcome {
		out.Status = StatusFailed
		out.Err = err
		return out
	}

	if task.URL == "" {
		return fail(crawler.ErrEmptyURL)
	}

	if !w.cfg.Refresh {
		exists, err := w.store.Exists(ctx, task.URL)
		if err != nil {
			return fail(fmt.Errorf("check existing: %w", err))
		}
		if exists {
			out.Status = StatusSkipped
			return out
		}
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, task.URL); err != nil {
			return fail(err)
		}
	}

	page, err := w.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		return fail(err)
	}

	if w.snapshotter != nil {
		uri, err := w.snapshotter.Save(ctx, page)
		if err != nil {
			logger.Warn("snapshot failed", zap.Error(err))
		} else {
			out.SnapshotURI = uri
		}
	}

	record, err := w.extractor.Extract(page, task.URL, task.ForcedCategory)
	if err != nil {
		return fail(err)
	}
	out.Title = record.Title
	out.Category = crawler.StringValue(record.Category)

	res, err := w.store.Upsert(ctx, record)
	if err != nil {
		return fail(err)
	}
	out.Status = StatusUpdated
	if res.Inserted {
		out.Status = StatusInserted
	}

	w.publish(ctx, task, record, res, out.SnapshotURI, logger)
	return out
}

func (w *Worker) publish(
	ctx context.Context,
	task Task,
	record crawler.ArticleRecord,
	res crawler.UpsertResult,
	snapshotURI string,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := crawler.ArticleEvent{
		URL:         record.URL,
		Title:       record.Title,
		Category:    record.Category,
		Inserted:    res.Inserted,
		SnapshotURI: snapshotURI,
		RunID:       task.RunID,
		EmittedAt:   w.clock.Now(),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		logger.Warn("publish article event failed", zap.Error(err))
	}
}
