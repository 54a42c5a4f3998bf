// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Categories []CategoryConfig `mapstructure:"categories"`
	Store      StoreConfig      `mapstructure:"store"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the read API.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// CrawlerConfig governs the fetcher, worker pool and pagination.
type CrawlerConfig struct {
	Concurrency           int     `mapstructure:"concurrency"`
	MaxPages              int     `mapstructure:"max_pages"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	UserAgent             string  `mapstructure:"user_agent"`
	AcceptLanguage        string  `mapstructure:"accept_language"`
	PageDelayMinMs        int     `mapstructure:"page_delay_min_ms"`
	PageDelayMaxMs        int     `mapstructure:"page_delay_max_ms"`
	RateLimitRPS          float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int     `mapstructure:"rate_limit_burst"`
	ProbeGuessedPages     bool    `mapstructure:"probe_guessed_pages"`
	ReadabilityFallback   bool    `mapstructure:"readability_fallback"`
	Refresh               bool    `mapstructure:"refresh"`
}

// CategoryConfig is one listing crawled by the multi-category run.
type CategoryConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// StoreConfig selects and configures the article store.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
	RedisAddr  string `mapstructure:"redis_addr"`
	RedisPass  string `mapstructure:"redis_password"`
	RedisDB    int    `mapstructure:"redis_db"`
	RedisKey   string `mapstructure:"redis_key"`
}

// ArchiveConfig controls raw page snapshots.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DefaultCategories are the blog sections crawled when none are configured.
var DefaultCategories = []CategoryConfig{
	{Name: "Tech", URL: "https://www.blogdumoderateur.com/tech/"},
	{Name: "Web", URL: "https://www.blogdumoderateur.com/web/"},
	{Name: "Social", URL: "https://www.blogdumoderateur.com/social/"},
	{Name: "Marketing", URL: "https://www.blogdumoderateur.com/marketing/"},
}

// LoadEnvFile exports the variables in a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("harvester")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/harvester/")
		v.AddConfigPath("$HOME/.harvester")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = append([]CategoryConfig(nil), DefaultCategories...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.max_pages", 500)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.page_delay_min_ms", 1000)
	v.SetDefault("crawler.page_delay_max_ms", 3000)
	v.SetDefault("crawler.rate_limit_rps", 0)
	v.SetDefault("crawler.rate_limit_burst", 1)
	v.SetDefault("crawler.probe_guessed_pages", true)
	v.SetDefault("crawler.readability_fallback", false)
	v.SetDefault("crawler.refresh", false)
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.table", "articles")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.uri", "mongodb://localhost:27017/")
	v.SetDefault("store.database", "scraping_db")
	v.SetDefault("store.collection", "articles")
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)

	// Registered so AutomaticEnv can bind them during Unmarshal.
	for _, key := range []string{
		"server.api_key",
		"crawler.user_agent",
		"crawler.accept_language",
		"store.dsn",
		"store.redis_addr",
		"store.redis_password",
		"store.redis_key",
		"archive.base_dir",
		"archive.bucket",
		"pubsub.project_id",
		"pubsub.topic",
		"logging.level",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("store.redis_db", 0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.PageDelayMinMs < 0 || c.Crawler.PageDelayMaxMs < c.Crawler.PageDelayMinMs {
		return fmt.Errorf("crawler.page_delay_max_ms must be >= page_delay_min_ms >= 0")
	}
	for i, category := range c.Categories {
		if category.Name == "" || category.URL == "" {
			return fmt.Errorf("categories[%d] needs a name and a url", i)
		}
	}

	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	case StoreMongo:
		if c.Store.URI == "" || c.Store.Database == "" || c.Store.Collection == "" {
			return fmt.Errorf("store.uri, store.database and store.collection are required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}

	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// RequestTimeout is the per-request fetch timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// PageDelay returns the jitter bounds between listing pages.
func (c Config) PageDelay() (time.Duration, time.Duration) {
	return time.Duration(c.Crawler.PageDelayMinMs) * time.Millisecond,
		time.Duration(c.Crawler.PageDelayMaxMs) * time.Millisecond
}

// CategoryNames lists the configured category names in order.
func (c Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Categories))
	for _, category := range c.Categories {
		names = append(names, category.Name)
	}
	return names
}
