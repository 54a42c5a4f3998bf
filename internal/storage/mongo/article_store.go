// Package mongostore provides a MongoDB-backed article store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

const (
	defaultDatabase   = "harvester"
	defaultCollection = "articles"
)

// Config controls the MongoDB connection.
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	CountDocuments(ctx context.Context, filter any, opts ...options.Lister[options.CountOptions]) (int64, error)
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	Distinct(ctx context.Context, fieldName string, filter any, opts ...options.Lister[options.DistinctOptions]) *mongo.DistinctResult
	Indexes() mongo.IndexView
}

// ArticleStore persists article documents with a unique index on url.
type ArticleStore struct {
	client     *mongo.Client
	collection collection
	clock      crawler.Clock
}

var _ crawler.ArticleStore = (*ArticleStore)(nil)

// articleDocument is the stored shape of an ArticleRecord.
type articleDocument struct {
	URL             string          `bson:"url"`
	Title           string          `bson:"title"`
	PublishedAt     *string         `bson:"published_at"`
	Author          *string         `bson:"author"`
	Summary         string          `bson:"summary"`
	PrimaryImageURL *string         `bson:"primary_image_url"`
	Category        *string         `bson:"category"`
	SubCategory     *string         `bson:"sub_category"`
	Tags            []string        `bson:"tags"`
	Images          []crawler.Image `bson:"images"`
	ExtractedAt     time.Time       `bson:"extracted_at"`
}

// NewArticleStore connects, pings and ensures the unique url index.
func NewArticleStore(ctx context.Context, cfg Config, clock crawler.Clock) (*ArticleStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("store.uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	store := newWithCollection(client.Database(cfg.Database).Collection(cfg.Collection), clock)
	store.client = client
	if err := store.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

func newWithCollection(coll collection, clock crawler.Clock) *ArticleStore {
	if clock == nil {
		clock = crawler.SystemClock{}
	}
	return &ArticleStore{collection: coll, clock: clock}
}

func (s *ArticleStore) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "sub_category", Value: 1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Exists reports whether a document with url is stored.
func (s *ArticleStore) Exists(ctx context.Context, url string) (bool, error) {
	n, err := s.collection.CountDocuments(ctx, bson.D{{Key: "url", Value: url}}, options.Count().SetLimit(1))
	if err != nil {
		return false, &crawler.PersistenceError{Op: "exists", URL: url, Err: err}
	}
	return n > 0, nil
}

// Upsert sets every field of the document matching the record URL,
// creating it when absent. Two concurrent upserts of a new URL can race on
// the unique index; the loser retries once and lands as an update.
func (s *ArticleStore) Upsert(ctx context.Context, record crawler.ArticleRecord) (crawler.UpsertResult, error) {
	if record.URL == "" {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert", Err: crawler.ErrEmptyURL}
	}
	doc := toDocument(record.Normalized(), s.clock.Now())
	filter := bson.D{{Key: "url", Value: doc.URL}}
	update := bson.D{{Key: "$set", Value: doc}}
	opts := options.UpdateOne().SetUpsert(true)

	res, err := s.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		res, err = s.collection.UpdateOne(ctx, filter, update, opts)
	}
	if err != nil {
		return crawler.UpsertResult{}, &crawler.PersistenceError{Op: "upsert", URL: record.URL, Err: err}
	}
	return upsertResult(res), nil
}

// List filters, sorts and pages stored documents.
func (s *ArticleStore) List(ctx context.Context, q crawler.ArticleQuery) (crawler.ArticlePage, error) {
	q = q.WithDefaults()
	if !q.SortBy.Valid() {
		return crawler.ArticlePage{}, fmt.Errorf("unsupported sort field %q", q.SortBy)
	}
	filter := buildFilter(q)

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "count", Err: err}
	}
	cursor, err := s.collection.Find(ctx, filter, findOptions(q))
	if err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "list", Err: err}
	}
	var docs []articleDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return crawler.ArticlePage{}, &crawler.PersistenceError{Op: "list", Err: err}
	}

	page := crawler.ArticlePage{Total: int(total), Page: q.Page, Limit: q.Limit, Articles: []crawler.ArticleRecord{}}
	for _, doc := range docs {
		page.Articles = append(page.Articles, fromDocument(doc))
	}
	return page, nil
}

// SubCategories returns distinct non-empty sub-categories.
func (s *ArticleStore) SubCategories(ctx context.Context, category string) ([]string, error) {
	filter := bson.D{}
	if category != "" {
		filter = append(filter, bson.E{Key: "category", Value: category})
	}
	var values []*string
	if err := s.collection.Distinct(ctx, "sub_category", filter).Decode(&values); err != nil {
		return nil, &crawler.PersistenceError{Op: "sub_categories", Err: err}
	}
	return compactStrings(values), nil
}

// Ping checks connectivity against the primary.
func (s *ArticleStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("ping mongo: client not connected")
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *ArticleStore) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}

func toDocument(record crawler.ArticleRecord, now time.Time) articleDocument {
	return articleDocument{
		URL:             record.URL,
		Title:           record.Title,
		PublishedAt:     record.PublishedAt,
		Author:          record.Author,
		Summary:         record.Summary,
		PrimaryImageURL: record.PrimaryImageURL,
		Category:        record.Category,
		SubCategory:     record.SubCategory,
		Tags:            record.Tags,
		Images:          record.Images,
		ExtractedAt:     now,
	}
}

func fromDocument(doc articleDocument) crawler.ArticleRecord {
	return crawler.ArticleRecord{
		URL:             doc.URL,
		Title:           doc.Title,
		PublishedAt:     doc.PublishedAt,
		Author:          doc.Author,
		Summary:         doc.Summary,
		PrimaryImageURL: doc.PrimaryImageURL,
		Category:        doc.Category,
		SubCategory:     doc.SubCategory,
		Tags:            doc.Tags,
		Images:          doc.Images,
		ExtractedAt:     doc.ExtractedAt.UTC(),
	}.Normalized()
}

func upsertResult(res *mongo.UpdateResult) crawler.UpsertResult {
	if res == nil {
		return crawler.UpsertResult{}
	}
	if res.UpsertedCount > 0 {
		return crawler.UpsertResult{Inserted: true}
	}
	return crawler.UpsertResult{Updated: true}
}

func buildFilter(q crawler.ArticleQuery) bson.D {
	filter := bson.D{}
	if q.Author != "" {
		filter = append(filter, bson.E{Key: "author", Value: containsRegex(q.Author)})
	}
	if q.Category != "" {
		filter = append(filter, bson.E{Key: "category", Value: q.Category})
	}
	if q.SubCategory != "" {
		filter = append(filter, bson.E{Key: "sub_category", Value: q.SubCategory})
	}
	if q.Title != "" {
		filter = append(filter, bson.E{Key: "title", Value: containsRegex(q.Title)})
	}
	return filter
}

func containsRegex(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func findOptions(q crawler.ArticleQuery) *options.FindOptionsBuilder {
	direction := 1
	if q.Descending {
		direction = -1
	}
	return options.Find().
		SetSort(bson.D{{Key: string(q.SortBy), Value: direction}, {Key: "url", Value: 1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.Limit)).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
}

func compactStrings(values []*string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != nil && *v != "" {
			out = append(out, *v)
		}
	}
	return out
}
