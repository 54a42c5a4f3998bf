// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "articles"

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of pgxpool.Pool the store needs.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// ArticleStore persists article records keyed by URL.
type ArticleStore struct {
	pool  pool
	table string
	clock crawler.Clock
}

var _ crawler.ArticleStore = (*ArticleStore)(nil)

// sortColumns maps API sort fields to columns.
var sortColumns = map[crawler.SortField]string{
	crawler.SortByPublishedAt: "published_at",
	crawler.SortByTitle:       "title",
	crawler.SortByExtractedAt: "extracted_at",
}

const selectColumns = `url, title, published_at, author, summary, primary_image_url,
	category, sub_category, tags, images, extracted_at`

// NewArticleStore connects to Postgres and ensures the schema exists.
func NewArticleStore(ctx context.Context, cfg Config, clock crawler.Clock) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArticleStoreWithPool(p, cfg.Table, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool, table string, clock crawler.Clock) (*ArticleStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	return &ArticleStore{pool: p, table: table, clock: clock}, nil
}

// EnsureSchema creates the article table and its indexes.
func (s *ArticleStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url               TEXT PRIMARY KEY,
	title             TEXT NOT NULL,
	published_at      TEXT,
	author            TEXT,
	summary           TEXT NOT NULL DEFAULT '',
	primary_image_url TEXT,
	category          TEXT,
	sub_category      TEXT,
	tags              JSONB NOT NULL DEFAULT '[]',
	images            JSONB NOT NULL DEFAULT '[]',
	extracted_at      TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_category_idx ON %s (category, sub_category)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Exists reports whether a row with url is stored.
func (s *ArticleStore) Exists(ctx context.Context, url string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)`, s.table)
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, &crawler.PersistenceError{Op: "exists", URL: url, Err: err}
	}
	return exists, nil
}

// Upsert inserts the record or replaces every column of the existing row.
// xmax is zero only for rows created by this statement.
func (s *ArticleStore) Upsert(ctx context.Context, record crawler.ArticleRecord) (crawler.UpsertResult, error) {
	if record.URL == "" {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert", Err: crawler.ErrEmptyURL}
	}
	record = record.Normalized()
	tagsJSON, err := json.Marshal(record.Tags)
	if err != nil {
		return crawler.UpsertResult{}, fmt.Errorf("marshal tags: %w", err)
	}
	imagesJSON, err := json.Marshal(record.Images)
	if err != nil {
		return crawler.UpsertResult{}, fmt.Errorf("marshal images: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	url, title, published_at, author, summary, primary_image_url,
	category, sub_category, tags, images, extracted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	published_at = EXCLUDED.published_at,
	author = EXCLUDED.author,
	summary = EXCLUDED.summary,
	primary_image_url = EXCLUDED.primary_image_url,
	category = EXCLUDED.category,
	sub_category = EXCLUDED.sub_category,
	tags = EXCLUDED.tags,
	images = EXCLUDED.images,
	extracted_at = EXCLUDED.extracted_at
RETURNING (xmax = 0) AS inserted`, s.table)

	args := []any{
		record.URL,
		record.Title,
		record.PublishedAt,
		record.Author,
		record.Summary,
		record.PrimaryImageURL,
		record.Category,
		record.SubCategory,
		tagsJSON,
		imagesJSON,
		s.clock.Now(),
	}
	var inserted bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert", URL: record.URL, Err: err}
	}
	return crawler.UpsertResult{Inserted: inserted, Updated: !inserted}, nil
}

// List filters, sorts and pages stored rows.
func (s *ArticleStore) List(ctx context.Context, q crawler.ArticleQuery) (crawler.ArticlePage, error) {
	q = q.WithDefaults()
	column, ok := sortColumns[q.SortBy]
	if !ok {
		return crawler.ArticlePage{}, fmt.Errorf("unsupported sort field %q", q.SortBy)
	}
	where, args := buildFilter(q)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.table, where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "count", Err: err}
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	listQuery := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY %s %s NULLS LAST, url ASC LIMIT $%d OFFSET $%d`,
		selectColumns, s.table, where, column, direction, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, listQuery, append(args, q.Limit, q.Offset())...)
	if err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	page := crawler.ArticlePage{Total: total, Page: q.Page, Limit: q.Limit, Articles: []crawler.ArticleRecord{}}
	for rows.Next() {
		record, err := scanArticle(rows)
		if err != nil {
			return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "list", Err: err}
		}
		page.Articles = append(page.Articles, record)
	}
	if err := rows.Err(); err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "list", Err: err}
	}
	return page, nil
}

// SubCategories returns distinct non-empty sub-categories.
func (s *ArticleStore) SubCategories(ctx context.Context, category string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT sub_category FROM %s WHERE sub_category IS NOT NULL AND sub_category <> ''`, s.table)
	var args []any
	if category != "" {
		query += " AND category = $1"
		args = append(args, category)
	}
	query += " ORDER BY sub_category"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &crawler.PersistenceError{Op: "sub_categories", Err: err}
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, &crawler.PersistenceError{Op: "sub_categories", Err: err}
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &crawler.PersistenceError{Op: "sub_categories", Err: err}
	}
	return out, nil
}

// Ping checks connectivity.
func (s *ArticleStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func buildFilter(q crawler.ArticleQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.Author != "" {
		add("author ILIKE $%d", "%"+escapeLike(q.Author)+"%")
	}
	if q.Category != "" {
		add("category = $%d", q.Category)
	}
	if q.SubCategory != "" {
		add("sub_category = $%d", q.SubCategory)
	}
	if q.Title != "" {
		add("title ILIKE $%d", "%"+escapeLike(q.Title)+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanArticle(rows pgx.Rows) (crawler.ArticleRecord, error) {
	var (
		record     crawler.ArticleRecord
		tagsJSON   []byte
		imagesJSON []byte
	)
	if err := rows.Scan(
		&record.URL,
		&record.Title,
		&record.PublishedAt,
		&record.Author,
		&record.Summary,
		&record.PrimaryImageURL,
		&record.Category,
		&record.SubCategory,
		&tagsJSON,
		&imagesJSON,
		&record.ExtractedAt,
	); err != nil {
		return crawler.ArticleRecord{}, fmt.Errorf("scan article: %w", err)
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &record.Tags); err != nil {
			return crawler.ArticleRecord{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(imagesJSON) > 0 {
		if err := json.Unmarshal(imagesJSON, &record.Images); err != nil {
			return crawler.ArticleRecord{}, fmt.Errorf("decode images: %w", err)
		}
	}
	return record.Normalized(), nil
}
