// Package app builds the harvester's long-lived services from configuration
// and releases them on shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/api"
	"github.com/JakeFAU/article-harvester/internal/archive"
	"github.com/JakeFAU/article-harvester/internal/config"
	"github.com/JakeFAU/article-harvester/internal/crawler"
	"github.com/JakeFAU/article-harvester/internal/dispatcher"
	"github.com/JakeFAU/article-harvester/internal/engine"
	"github.com/JakeFAU/article-harvester/internal/extract"
	collyfetcher "github.com/JakeFAU/article-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/article-harvester/internal/id/uuid"
	"github.com/JakeFAU/article-harvester/internal/logging"
	"github.com/JakeFAU/article-harvester/internal/metrics"
	"github.com/JakeFAU/article-harvester/internal/pagination"
	"github.com/JakeFAU/article-harvester/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/article-harvester/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/article-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/article-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/article-harvester/internal/storage/memory"
	mongostore "github.com/JakeFAU/article-harvester/internal/storage/mongo"
	pgstore "github.com/JakeFAU/article-harvester/internal/storage/postgres"
	"github.com/JakeFAU/article-harvester/internal/storage/rediscache"
	"github.com/JakeFAU/article-harvester/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// closer releases one resource during shutdown.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     crawler.ArticleStore
	engine    *engine.Engine
	apiServer *api.Server
	closers   []closer
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured article store.
func (a *App) Store() crawler.ArticleStore { return a.store }

// Engine returns the crawl engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Handler returns the read API handler.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Build creates the application's dependencies. Only a store that cannot be
// initialized is fatal; optional integrations log and degrade.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies",
		zap.String("store", cfg.Store.Backend),
		zap.String("archive", cfg.Archive.Backend),
		zap.Int("concurrency", cfg.Crawler.Concurrency),
	)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	snapshotter, err := app.setupArchive(ctx)
	if err != nil {
		app.logger.Warn("page archive unavailable, continuing without snapshots", zap.Error(err))
		snapshotter = nil
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.logger.Warn("pub/sub unavailable, continuing without notifications", zap.Error(err))
		publisher = nil
	}
	app.setupEngine(snapshotter, publisher)

	app.apiServer = api.NewServer(app.store, api.Options{
		Categories:     cfg.CategoryNames(),
		APIKey:         cfg.Server.APIKey,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
	}, logger.Named("api"))

	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	clock := crawler.SystemClock{}
	var (
		store crawler.ArticleStore
		err   error
	)
	switch a.cfg.Store.Backend {
	case config.StorePostgres:
		store, err = pgstore.NewArticleStore(ctx, pgstore.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: a.cfg.Store.MaxConns,
		}, clock)
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.logger.Info("using postgres article store", zap.String("table", a.cfg.Store.Table))
	case config.StoreMongo:
		store, err = mongostore.NewArticleStore(ctx, mongostore.Config{
			URI:        a.cfg.Store.URI,
			Database:   a.cfg.Store.Database,
			Collection: a.cfg.Store.Collection,
			Timeout:    a.cfg.RequestTimeout(),
		}, clock)
		if err != nil {
			return fmt.Errorf("mongo store init failed: %w", err)
		}
		a.logger.Info("using mongo article store",
			zap.String("database", a.cfg.Store.Database),
			zap.String("collection", a.cfg.Store.Collection),
		)
	default:
		store = memorystorage.NewArticleStore(clock)
		a.logger.Warn("using in-memory article store, records are lost on exit")
	}

	if a.cfg.Store.RedisAddr != "" {
		cached, cacheErr := rediscache.New(ctx, rediscache.Config{
			Addr:     a.cfg.Store.RedisAddr,
			Password: a.cfg.Store.RedisPass,
			DB:       a.cfg.Store.RedisDB,
			Key:      a.cfg.Store.RedisKey,
		}, store, a.logger.Named("rediscache"))
		if cacheErr != nil {
			a.logger.Warn("redis cache unavailable, continuing without it", zap.Error(cacheErr))
		} else {
			a.logger.Info("redis exists cache enabled", zap.String("addr", a.cfg.Store.RedisAddr))
			store = cached
		}
	}

	a.store = store
	a.closers = append(a.closers, closer{name: "article store", close: store.Close})
	return nil
}

// setupArchive returns nil when snapshots are disabled.
func (a *App) setupArchive(ctx context.Context) (worker.Snapshotter, error) {
	var blobs crawler.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs client", close: func(context.Context) error {
			return client.Close()
		}})
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving pages to gcs", zap.String("bucket", a.cfg.Archive.Bucket))
	case config.ArchiveLocal:
		local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = local
		a.logger.Info("archiving pages locally", zap.String("path", a.cfg.Archive.BaseDir))
	default:
		a.logger.Info("page archive disabled")
		return nil, nil
	}
	return archive.New(blobs, a.cfg.Archive.Prefix), nil
}

// setupPublisher returns nil when no topic is configured.
func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.Topic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no pub/sub topic configured, upsert notifications disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	publisher := client.Publisher(a.cfg.PubSub.Topic)
	a.closers = append(a.closers,
		closer{name: "pubsub client", close: func(context.Context) error { return client.Close() }},
		closer{name: "pubsub publisher", close: func(context.Context) error {
			publisher.Stop()
			return nil
		}},
	)
	a.logger.Info("pub/sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return gcppublisher.New(publisher), nil
}

func (a *App) setupEngine(snapshotter worker.Snapshotter, publisher crawler.Publisher) {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      a.cfg.Crawler.UserAgent,
		AcceptLanguage: a.cfg.Crawler.AcceptLanguage,
		Timeout:        a.cfg.RequestTimeout(),
	}, a.logger.Named("fetcher"))
	extractor := extract.New(extract.Config{
		ReadabilityFallback: a.cfg.Crawler.ReadabilityFallback,
	}, a.logger.Named("extract"))
	resolver := pagination.New(pagination.Config{
		ProbeGuesses: a.cfg.Crawler.ProbeGuessedPages,
	}, fetcher, a.logger.Named("pagination"))
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Crawler.RateLimitRPS,
		DefaultBurst: a.cfg.Crawler.RateLimitBurst,
	})

	topic := ""
	if publisher != nil {
		topic = a.cfg.PubSub.Topic
	}
	w := worker.New(
		fetcher,
		extractor,
		a.store,
		limiter,
		snapshotter,
		publisher,
		crawler.SystemClock{},
		worker.Config{Topic: topic, Refresh: a.cfg.Crawler.Refresh},
		a.logger.Named("worker"),
	)

	minDelay, maxDelay := a.cfg.PageDelay()
	a.engine = engine.New(
		fetcher,
		resolver,
		dispatcher.New(w, a.cfg.Crawler.Concurrency),
		limiter,
		ratelimit.Jitter{Min: minDelay, Max: maxDelay},
		uuid.New(),
		a.logger.Named("engine"),
	)
	a.logger.Info("crawl engine ready",
		zap.Bool("refresh", a.cfg.Crawler.Refresh),
		zap.Bool("probe_guessed_pages", a.cfg.Crawler.ProbeGuessedPages),
		zap.Bool("archive", snapshotter != nil),
		zap.Bool("publish", publisher != nil),
	)
}

// Categories converts the configured categories for RunCategories.
func (a *App) Categories() []engine.Category {
	out := make([]engine.Category, 0, len(a.cfg.Categories))
	for _, c := range a.cfg.Categories {
		out = append(out, engine.Category{Name: c.Name, URL: c.URL})
	}
	return out
}

// Serve runs the read API until ctx is canceled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases resources in the reverse order they were acquired. Every
// closer runs; their errors are joined.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
