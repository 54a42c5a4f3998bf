package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const breadcrumbSelector = ".breadcrumbs a, .breadcrumb a, .nav-breadcrumb a"

// Keyword maps a URL substring to a category name.
type Keyword struct {
	Substring string
	Category  string
}

// DefaultKeywords are checked against the article URL in this order.
var DefaultKeywords = []Keyword{
	{Substring: "marketing", Category: "Marketing"},
	{Substring: "web", Category: "Web"},
	{Substring: "social", Category: "Social"},
	{Substring: "tech", Category: "Tech"},
}

// categoryInput is what every category strategy sees.
type categoryInput struct {
	forced   string
	url      string
	doc      *goquery.Document
	keywords []Keyword
}

// CategoryStrategy resolves a category or reports that it has none.
type CategoryStrategy struct {
	Name    string
	Resolve func(in categoryInput) (string, bool)
}

// categoryStrategies lists the resolvers from highest to lowest precedence.
var categoryStrategies = []CategoryStrategy{
	{Name: "forced", Resolve: forcedCategory},
	{Name: "url_keyword", Resolve: urlKeywordCategory},
	{Name: "breadcrumb", Resolve: breadcrumbCategory},
	{Name: "article_section", Resolve: sectionMetaCategory},
}

func resolveCategory(in categoryInput) (string, string) {
	for _, strategy := range categoryStrategies {
		if category, ok := strategy.Resolve(in); ok {
			return category, strategy.Name
		}
	}
	return "", ""
}

func forcedCategory(in categoryInput) (string, bool) {
	forced := strings.TrimSpace(in.forced)
	return forced, forced != ""
}

func urlKeywordCategory(in categoryInput) (string, bool) {
	target := strings.ToLower(in.url)
	for _, kw := range in.keywords {
		if kw.Substring != "" && strings.Contains(target, strings.ToLower(kw.Substring)) {
			return kw.Category, true
		}
	}
	return "", false
}

// breadcrumbCategory accepts only crumbs whose text equals a known category.
func breadcrumbCategory(in categoryInput) (string, bool) {
	var found string
	in.doc.Find(breadcrumbSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		for _, kw := range in.keywords {
			if text == kw.Category {
				found = kw.Category
				return false
			}
		}
		return true
	})
	return found, found != ""
}

func sectionMetaCategory(in categoryInput) (string, bool) {
	section := metaProperty(in.doc, "article:section")
	return section, section != ""
}
