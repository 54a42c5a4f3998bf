package extract

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

const (
	articleSelector      = "article"
	articleTitleLinkSel  = "h3.entry-title a[href]"
	articleFallbackLinks = "a[href]"
)

// ArticleLinks parses a listing page and returns its article URLs in
// document order.
func ArticleLinks(page crawler.RawPage) ([]string, error) {
	doc, err := Parse(page)
	if err != nil {
		return nil, err
	}
	return LinksFromDocument(doc, page.BaseURL()), nil
}

// LinksFromDocument returns one URL per article block: the entry-title link
// when present, otherwise the first anchor with an href. Blocks with neither
// contribute nothing.
func LinksFromDocument(doc *goquery.Document, baseURL string) []string {
	base := parseBase(baseURL)
	links := []string{}
	doc.Find(articleSelector).Each(func(_ int, block *goquery.Selection) {
		anchor := block.Find(articleTitleLinkSel).First()
		if anchor.Length() == 0 {
			anchor = block.Find(articleFallbackLinks).First()
		}
		if anchor.Length() == 0 {
			return
		}
		href, _ := anchor.Attr("href")
		if resolved, ok := ResolveURL(base, href); ok {
			links = append(links, resolved)
		}
	})
	return links
}
