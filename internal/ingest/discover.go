package ingest

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/GuavaAi/auto-media/internal/config"
)

// DiscoverLinks finds candidate sub-page URLs on a parent page. Only
// same-host absolute URLs count; anchors, mailto and javascript pseudo-links
// are dropped. When the scope has a CSS selector, only links inside matching
// regions are considered. At most budget URLs are returned, in document
// order, deduplicated, and never including the parent itself.
func DiscoverLinks(rawHTML, pageURL string, scope *config.ParserSpec, budget int) []string {
	if budget <= 0 {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	root := doc.Selection
	if scope != nil && strings.TrimSpace(scope.CSSSelector) != "" {
		if scoped := doc.Find(scope.CSSSelector); scoped.Length() > 0 {
			root = scoped
		}
	}

	seen := map[string]bool{canonical(base): true}
	var links []string
	root.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host || (abs.Scheme != "http" && abs.Scheme != "https") {
			return true
		}
		key := canonical(abs)
		if seen[key] {
			return true
		}
		seen[key] = true
		links = append(links, key)
		return len(links) < budget
	})
	return links
}

// canonical strips the fragment so URL identity ignores in-page anchors.
func canonical(u *url.URL) string {
	cp := *u
	cp.Fragment = ""
	return cp.String()
}
