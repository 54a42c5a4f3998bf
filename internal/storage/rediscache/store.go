// Package rediscache fronts an ArticleStore with a Redis set of known URLs
// so repeat runs can skip stored articles without querying the database.
package rediscache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

const defaultKey = "harvester:articles:urls"

// Config controls the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// setClient is the subset of the redis client the cache uses.
type setClient interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Store wraps a backing ArticleStore. Redis failures are logged and the
// backing store answers instead.
type Store struct {
	crawler.ArticleStore
	client setClient
	key    string
	logger *zap.Logger
}

// New connects to Redis and wraps backing.
func New(ctx context.Context, cfg Config, backing crawler.ArticleStore, logger *zap.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("store.redis_addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newWithClient(client, cfg.Key, backing, logger), nil
}

func newWithClient(client setClient, key string, backing crawler.ArticleStore, logger *zap.Logger) *Store {
	if key == "" {
		key = defaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{ArticleStore: backing, client: client, key: key, logger: logger}
}

// Exists answers from the cache when it knows the URL, otherwise from the
// backing store, warming the cache on a hit.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	cached, err := s.client.SIsMember(ctx, s.key, url).Result()
	if err != nil {
		s.logger.Warn("redis lookup failed", zap.String("url", url), zap.Error(err))
	} else if cached {
		return true, nil
	}

	exists, err := s.ArticleStore.Exists(ctx, url)
	if err != nil {
		return false, err
	}
	if exists {
		s.remember(ctx, url)
	}
	return exists, nil
}

// Upsert writes through to the backing store and records the URL.
func (s *Store) Upsert(ctx context.Context, record crawler.ArticleRecord) (crawler.UpsertResult, error) {
	res, err := s.ArticleStore.Upsert(ctx, record)
	if err != nil {
		return res, err
	}
	s.remember(ctx, record.URL)
	return res, nil
}

// Ping checks both Redis and the backing store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return s.ArticleStore.Ping(ctx)
}

// Close releases Redis and then the backing store.
func (s *Store) Close(ctx context.Context) error {
	redisErr := s.client.Close()
	storeErr := s.ArticleStore.Close(ctx)
	if redisErr != nil {
		return errors.Join(fmt.Errorf("close redis: %w", redisErr), storeErr)
	}
	return storeErr
}

func (s *Store) remember(ctx context.Context, url string) {
	if err := s.client.SAdd(ctx, s.key, url).Err(); err != nil {
		s.logger.Warn("redis add failed", zap.String("url", url), zap.Error(err))
	}
}
