package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

// Article page selectors.
const (
	titleSelector        = "h1.entry-title"
	subCategorySelector  = ".favtag"
	primaryImageSelector = ".article-hat-img img"
	publishedSelector    = ".posted-on time.entry-date"
	authorSelector       = ".meta-info .byline a"
	summarySelector      = ".article-hat p"
	tagSelector          = ".tags-list a"
)

// Config controls the article extractor.
type Config struct {
	// Keywords maps URL substrings to categories and doubles as the list of
	// known categories for breadcrumb matching. Defaults to DefaultKeywords.
	Keywords []Keyword
	// ReadabilityFallback fills a missing summary or author from a
	// readability pass over the whole page.
	ReadabilityFallback bool
}

// Extractor implements crawler.Extractor with goquery.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

var _ crawler.Extractor = (*Extractor)(nil)

// New returns an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if len(cfg.Keywords) == 0 {
		cfg.Keywords = DefaultKeywords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// KnownCategories returns the category names the extractor recognizes.
func (e *Extractor) KnownCategories() []string {
	names := make([]string, 0, len(e.cfg.Keywords))
	for _, kw := range e.cfg.Keywords {
		names = append(names, kw.Category)
	}
	return names
}

// Extract builds an ArticleRecord from an article page. Each field is
// resolved independently; only unparseable markup is an error.
func (e *Extractor) Extract(page crawler.RawPage, articleURL string, forcedCategory string) (crawler.ArticleRecord, error) {
	if articleURL == "" {
		articleURL = page.URL
	}
	doc, err := Parse(page)
	if err != nil {
		return crawler.ArticleRecord{}, &crawler.ExtractionError{URL: articleURL, Err: err}
	}
	base := parseBase(page.BaseURL())

	record := crawler.ArticleRecord{
		URL:         articleURL,
		Title:       firstNonEmpty(firstText(doc, titleSelector), metaProperty(doc, "og:title")),
		SubCategory: crawler.OptionalString(firstText(doc, subCategorySelector)),
		PublishedAt: crawler.OptionalString(publishedAt(doc)),
		Author:      crawler.OptionalString(firstNonEmpty(firstText(doc, authorSelector), metaName(doc, "author"))),
		Summary:     firstText(doc, summarySelector),
		Tags:        tags(doc),
	}

	category, source := resolveCategory(categoryInput{
		forced:   forcedCategory,
		url:      articleURL,
		doc:      doc,
		keywords: e.cfg.Keywords,
	})
	record.Category = crawler.OptionalString(category)
	if source == "article_section" {
		e.logger.Warn("category resolved from article:section metadata", zap.String("url", articleURL))
	} else if source == "" {
		e.logger.Debug("no category resolved", zap.String("url", articleURL))
	}

	record.PrimaryImageURL = primaryImage(doc, base)
	record.Images = collectImages(doc, base, record.PrimaryImageURL)

	if e.cfg.ReadabilityFallback && (record.Summary == "" || record.Author == nil) {
		e.applyReadability(page, base, &record)
	}

	return record.Normalized(), nil
}

func (e *Extractor) applyReadability(page crawler.RawPage, base *url.URL, record *crawler.ArticleRecord) {
	if base == nil {
		return
	}
	article, err := readability.FromReader(bytes.NewReader(page.Body), base)
	if err != nil {
		e.logger.Debug("readability pass failed", zap.String("url", record.URL), zap.Error(err))
		return
	}
	if record.Summary == "" {
		record.Summary = strings.TrimSpace(article.Excerpt)
	}
	if record.Author == nil {
		record.Author = crawler.OptionalString(article.Byline)
	}
}

func publishedAt(doc *goquery.Document) string {
	node := doc.Find(publishedSelector).First()
	if node.Length() > 0 {
		if dt, ok := node.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			return strings.TrimSpace(dt)
		}
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return metaProperty(doc, "article:published_time")
}

func primaryImage(doc *goquery.Document, base *url.URL) *string {
	src := firstAttr(doc, primaryImageSelector, "src")
	if src == "" {
		src = metaProperty(doc, "og:image")
	}
	if src == "" {
		return nil
	}
	if resolved, ok := ResolveURL(base, src); ok {
		return &resolved
	}
	return nil
}

func tags(doc *goquery.Document) []string {
	out := []string{}
	doc.Find(tagSelector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
