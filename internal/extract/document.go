// Package extract turns fetched markup into article links and article records.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

var errEmptyBody = errors.New("empty body")

// Parse builds a goquery document from a fetched page.
func Parse(page crawler.RawPage) (*goquery.Document, error) {
	if len(bytes.TrimSpace(page.Body)) == 0 {
		return nil, &crawler.ParseError{URL: page.BaseURL(), Err: errEmptyBody}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &crawler.ParseError{URL: page.BaseURL(), Err: fmt.Errorf("parse html: %w", err)}
	}
	return doc, nil
}

// ResolveURL resolves href against base. Fragments, javascript and mailto
// links are rejected.
func ResolveURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}
	if strings.HasPrefix(lower, "data:") {
		return href, true
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", false
		}
		return ref.String(), true
	}
	return base.ResolveReference(ref).String(), true
}

// firstText returns the trimmed text of the first match.
func firstText(doc *goquery.Document, selector string) string {
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

// firstAttr returns the trimmed attribute of the first match carrying it.
func firstAttr(doc *goquery.Document, selector, attr string) string {
	var value string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			value = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return value
}

func metaProperty(doc *goquery.Document, property string) string {
	return firstAttr(doc, fmt.Sprintf(`meta[property=%q]`, property), "content")
}

func metaName(doc *goquery.Document, name string) string {
	return firstAttr(doc, fmt.Sprintf(`meta[name=%q]`, name), "content")
}

func parseBase(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return u
}
