package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

const (
	bodyImageSelector = "article img"
	placeholderPrefix = "data:image/svg+xml"
)

// lazySourceAttrs are consulted when src holds a placeholder.
var lazySourceAttrs = []string{"data-src", "data-lazy-src"}

func isPlaceholder(src string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(src)), placeholderPrefix)
}

// imageSource picks the real source of an img, preferring lazy-load
// attributes when src is a placeholder.
func imageSource(img *goquery.Selection) string {
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" || isPlaceholder(src) {
		for _, attr := range lazySourceAttrs {
			if lazy := strings.TrimSpace(img.AttrOr(attr, "")); lazy != "" && !isPlaceholder(lazy) {
				return lazy
			}
		}
	}
	return src
}

// collectImages walks body images in document order. A placeholder is kept
// only while no real image has been collected.
func collectImages(doc *goquery.Document, base *url.URL, primary *string) []crawler.Image {
	images := []crawler.Image{}
	seenReal := false
	doc.Find(bodyImageSelector).Each(func(_ int, img *goquery.Selection) {
		src := imageSource(img)
		if src == "" {
			return
		}
		alt := img.AttrOr("alt", "")
		if isPlaceholder(src) {
			if !seenReal {
				images = append(images, crawler.Image{URL: src, Alt: alt})
			}
			return
		}
		resolved, ok := ResolveURL(base, src)
		if !ok {
			return
		}
		seenReal = true
		images = append(images, crawler.Image{URL: resolved, Alt: alt})
	})

	if len(images) == 0 && primary != nil {
		images = append(images, crawler.Image{URL: *primary, Alt: crawler.PrimaryImageAlt})
	}
	return images
}
