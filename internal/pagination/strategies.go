package pagination

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-harvester/internal/extract"
)

// nextSelectors are tried in order; the first match with an href wins.
var nextSelectors = []string{
	".nextpostslink",
	"a.next",
	".pagination .next a, .nav-links a.next, .wp-pagenavi a.nextpostslink",
	`a[rel="next"], link[rel="next"]`,
}

const paginationBlocks = ".pagination, .nav-links, .wp-pagenavi"

// nextVocabulary is matched against anchor text, case-insensitively, in order.
var nextVocabulary = []string{"suivant", "next", "suiv", "weiter", "siguiente", "›", "»", ">"}

var pageSuffix = regexp.MustCompile(`/page/(\d+)/?$`)

func structuralNext(c Context) (string, bool) {
	if c.Doc == nil {
		return "", false
	}
	for _, selector := range nextSelectors {
		var found string
		c.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if next, ok := resolveHref(c, s); ok {
				found = next
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// paginationBlockNext takes the anchor after the current one. Without a
// current marker it falls back to the block's last link.
func paginationBlockNext(c Context) (string, bool) {
	if c.Doc == nil {
		return "", false
	}
	var found string
	c.Doc.Find(paginationBlocks).EachWithBreak(func(_ int, block *goquery.Selection) bool {
		items := block.Find("a, .current, .active")
		activeIdx := -1
		items.EachWithBreak(func(i int, s *goquery.Selection) bool {
			if s.HasClass("current") || s.HasClass("active") {
				activeIdx = i
				return false
			}
			return true
		})

		if activeIdx >= 0 {
			items.Slice(activeIdx+1, items.Length()).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if !strings.EqualFold(goquery.NodeName(s), "a") {
					return true
				}
				if next, ok := resolveHref(c, s); ok {
					found = next
					return false
				}
				return true
			})
		} else {
			anchors := block.Find("a[href]")
			if anchors.Length() > 0 {
				if next, ok := resolveHref(c, anchors.Last()); ok {
					found = next
				}
			}
		}
		return found == ""
	})
	return found, found != ""
}

func linkTextNext(c Context) (string, bool) {
	if c.Doc == nil {
		return "", false
	}
	anchors := c.Doc.Find("a[href]")
	for _, word := range nextVocabulary {
		var found string
		anchors.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			if text == "" || !strings.Contains(text, word) {
				return true
			}
			if next, ok := resolveHref(c, s); ok {
				found = next
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

// urlIncrementNext bumps a trailing /page/N/ or appends /page/2/ when the
// path has no page segment.
func urlIncrementNext(c Context) (string, bool) {
	if c.Base == nil {
		return "", false
	}
	u := *c.Base
	u.RawQuery, u.Fragment = "", ""

	if m := pageSuffix.FindStringSubmatch(u.Path); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", false
		}
		u.Path = pageSuffix.ReplaceAllString(u.Path, fmt.Sprintf("/page/%d/", n+1))
		u.RawPath = ""
		return u.String(), true
	}
	if strings.Contains(u.Path, "/page/") {
		return "", false
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/page/2/"
	u.RawPath = ""
	return u.String(), true
}

// resolveHref resolves an anchor's href, rejecting links back to the
// current page.
func resolveHref(c Context, s *goquery.Selection) (string, bool) {
	href, ok := s.Attr("href")
	if !ok {
		return "", false
	}
	next, ok := extract.ResolveURL(c.Base, href)
	if !ok || sameURL(next, c.CurrentURL) {
		return "", false
	}
	return next, true
}
