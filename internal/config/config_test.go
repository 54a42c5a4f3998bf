package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != 5 || cfg.Crawler.MaxPages != 500 {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if cfg.Store.Backend != StoreMemory || cfg.Archive.Backend != ArchiveNone {
		t.Fatalf("unexpected backend defaults: store=%q archive=%q", cfg.Store.Backend, cfg.Archive.Backend)
	}
	if len(cfg.Categories) != len(DefaultCategories) || cfg.Categories[0].Name != "Tech" {
		t.Fatalf("expected default categories, got %+v", cfg.Categories)
	}
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Fatalf("expected 30s request timeout, got %v", got)
	}
	if cfg.Crawler.ReadabilityFallback {
		t.Fatalf("expected readability fallback to be opt-in")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  api_key: secret
crawler:
  concurrency: 8
  max_pages: 3
  request_timeout_seconds: 10
  page_delay_min_ms: 0
  page_delay_max_ms: 250
  probe_guessed_pages: false
  refresh: true
categories:
  - name: Tech
    url: https://blog.example.com/tech/
store:
  backend: postgres
  dsn: postgres://localhost/harvester
  redis_addr: localhost:6379
archive:
  backend: local
  base_dir: /tmp/pages
pubsub:
  project_id: demo
  topic: articles
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Crawler.Concurrency != 8 || cfg.Crawler.MaxPages != 3 || !cfg.Crawler.Refresh || cfg.Crawler.ProbeGuessedPages {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if len(cfg.Categories) != 1 || cfg.Categories[0].URL != "https://blog.example.com/tech/" {
		t.Fatalf("expected single configured category, got %+v", cfg.Categories)
	}
	if cfg.Store.Backend != StorePostgres || cfg.Store.Table != "articles" {
		t.Fatalf("expected postgres store with default table, got %+v", cfg.Store)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
	lo, hi := cfg.PageDelay()
	if lo != 0 || hi != 250*time.Millisecond {
		t.Fatalf("unexpected page delay bounds %v..%v", lo, hi)
	}
	if names := cfg.CategoryNames(); len(names) != 1 || names[0] != "Tech" {
		t.Fatalf("unexpected category names %v", names)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HARVESTER_STORE_BACKEND", "mongo")
	t.Setenv("HARVESTER_STORE_DATABASE", "news")
	t.Setenv("HARVESTER_CRAWLER_CONCURRENCY", "2")
	t.Setenv("HARVESTER_PUBSUB_PROJECT_ID", "demo")
	t.Setenv("HARVESTER_PUBSUB_TOPIC", "articles")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != StoreMongo || cfg.Store.Database != "news" {
		t.Fatalf("expected env store overrides, got %+v", cfg.Store)
	}
	if cfg.Crawler.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Crawler.Concurrency)
	}
	if cfg.PubSub.Topic != "articles" {
		t.Fatalf("expected pubsub topic from env, got %q", cfg.PubSub.Topic)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("HARVESTER_SERVER_PORT=7070\n"), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("HARVESTER_SERVER_PORT") })

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port from env file, got %d", cfg.Server.Port)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing env file should be ignored, got %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Concurrency: 1, MaxPages: 1, RequestTimeoutSeconds: 10},
		Store:   StoreConfig{Backend: StoreMemory},
		Archive: ArchiveConfig{Backend: ArchiveNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid concurrency", mutate: func(c *Config) { c.Crawler.Concurrency = 0 }, want: "crawler.concurrency"},
		{name: "invalid max pages", mutate: func(c *Config) { c.Crawler.MaxPages = 0 }, want: "crawler.max_pages"},
		{name: "invalid timeout", mutate: func(c *Config) { c.Crawler.RequestTimeoutSeconds = 0 }, want: "crawler.request_timeout_seconds"},
		{name: "inverted delay", mutate: func(c *Config) { c.Crawler.PageDelayMinMs = 500; c.Crawler.PageDelayMaxMs = 100 }, want: "page_delay"},
		{name: "category without url", mutate: func(c *Config) { c.Categories = []CategoryConfig{{Name: "Tech"}} }, want: "categories[0]"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = StorePostgres }, want: "store.dsn"},
		{name: "mongo without database", mutate: func(c *Config) { c.Store.Backend = StoreMongo; c.Store.URI = "mongodb://x" }, want: "store.uri"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Backend = "sqlite" }, want: "store.backend"},
		{name: "local archive without dir", mutate: func(c *Config) { c.Archive.Backend = ArchiveLocal }, want: "archive.base_dir"},
		{name: "gcs archive without bucket", mutate: func(c *Config) { c.Archive.Backend = ArchiveGCS }, want: "archive.bucket"},
		{name: "unknown archive", mutate: func(c *Config) { c.Archive.Backend = "s3" }, want: "archive.backend"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.Topic = "articles" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	body := "crawler:\n  max_pages: 7\n"
	if err := os.WriteFile(filepath.Join(dir, "harvester.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.MaxPages != 7 {
		t.Fatalf("expected max_pages from harvester.yaml, got %d", cfg.Crawler.MaxPages)
	}
}
