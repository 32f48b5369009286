// Package extract turns raw HTML into main text plus title metadata.
//
// Precedence: a configured selector override (CSS or XPath) always operates
// on the raw HTML, never on an already-reduced text; an empty match set is an
// explicit "filtered out" signal, not an error. Without an override the
// readability heuristic runs, degrading to full-page visible text when it
// fails or is disabled.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// Extractor names reported in ExtractedContent.Extractor.
const (
	ByCSSSelector = "css_selector"
	ByXPath       = "xpath"
	ByReadability = "readability"
	ByFullPage    = "fullpage"
	ByRaw         = "raw"
)

// Apply extracts main text from raw HTML for one page scope. scope may be
// nil (no selector override). The keyword include/exclude filters of the
// scope run on the extracted text; failing them yields empty MainText.
func Apply(raw, pageURL string, scope *config.ParserSpec, ex config.ExtractorSpec) types.ExtractedContent {
	if scope != nil && scope.HasSelector() {
		out := bySelector(raw, *scope)
		out.MainText = filterKeywords(out.MainText, scope)
		return out
	}

	out := MainText(raw, pageURL, ex)
	if scope != nil {
		out.MainText = filterKeywords(out.MainText, scope)
	}
	return out
}

// MainText extracts without any selector override.
func MainText(raw, pageURL string, ex config.ExtractorSpec) types.ExtractedContent {
	if !LooksLikeHTML(raw) {
		return types.ExtractedContent{MainText: raw, Extractor: ByRaw}
	}

	if ex.ReadabilityEnabled() {
		u, err := url.Parse(pageURL)
		if err != nil {
			u = &url.URL{}
		}
		article, err := readability.FromReader(strings.NewReader(raw), u)
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			return types.ExtractedContent{
				MainText:  strings.TrimSpace(article.TextContent),
				Extractor: ByReadability,
				Title:     article.Title,
			}
		}
		// Fall through to full-page extraction, keeping the error visible.
		if err != nil {
			out := fullPage(raw)
			out.Meta = map[string]string{"readability_error": err.Error()}
			return out
		}
	}

	return fullPage(raw)
}

// bySelector extracts the concatenated visible text of all nodes matching
// the configured selector. No match yields empty content.
func bySelector(raw string, scope config.ParserSpec) types.ExtractedContent {
	if css := strings.TrimSpace(scope.CSSSelector); css != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
		if err != nil {
			return types.ExtractedContent{Extractor: ByCSSSelector}
		}
		var parts []string
		doc.Find(css).Each(func(_ int, sel *goquery.Selection) {
			for _, n := range sel.Nodes {
				if t := nodeText(n); t != "" {
					parts = append(parts, t)
				}
			}
		})
		return types.ExtractedContent{
			MainText:  strings.Join(parts, "\n"),
			Extractor: ByCSSSelector,
			Title:     pageTitle(doc),
		}
	}

	xp := strings.TrimSpace(scope.XPath)
	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return types.ExtractedContent{Extractor: ByXPath}
	}
	nodes, err := htmlquery.QueryAll(doc, xp)
	if err != nil {
		return types.ExtractedContent{Extractor: ByXPath}
	}
	var parts []string
	for _, n := range nodes {
		if t := nodeText(n); t != "" {
			parts = append(parts, t)
		}
	}
	return types.ExtractedContent{
		MainText:  strings.Join(parts, "\n"),
		Extractor: ByXPath,
	}
}

// fullPage extracts the visible text of the entire document.
func fullPage(raw string) types.ExtractedContent {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return types.ExtractedContent{MainText: raw, Extractor: ByRaw}
	}
	var parts []string
	for _, n := range doc.Nodes {
		if t := nodeText(n); t != "" {
			parts = append(parts, t)
		}
	}
	return types.ExtractedContent{
		MainText:  strings.Join(parts, "\n"),
		Extractor: ByFullPage,
		Title:     pageTitle(doc),
	}
}

// filterKeywords applies include/exclude keyword rules. Text lacking every
// include keyword, or containing any exclude keyword, is filtered out.
func filterKeywords(text string, scope *config.ParserSpec) string {
	if text == "" || scope == nil {
		return text
	}
	lower := strings.ToLower(text)
	if len(scope.IncludeKeywords) > 0 {
		hit := false
		for _, k := range scope.IncludeKeywords {
			if k != "" && strings.Contains(lower, strings.ToLower(k)) {
				hit = true
				break
			}
		}
		if !hit {
			return ""
		}
	}
	for _, k := range scope.ExcludeKeywords {
		if k != "" && strings.Contains(lower, strings.ToLower(k)) {
			return ""
		}
	}
	return text
}

// LooksLikeHTML reports whether the text is worth parsing as HTML.
func LooksLikeHTML(s string) bool {
	if s == "" {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(t, "<!doctype") || strings.HasPrefix(t, "<html") {
		return true
	}
	return strings.Contains(t, "<body") || strings.Contains(t, "<div") ||
		strings.Contains(t, "<p") || strings.Contains(t, "<article") || strings.Contains(t, "<a")
}

func pageTitle(doc *goquery.Document) string {
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// nodeText walks a node collecting visible text, one line per text node.
// Script, style and similar non-content subtrees are skipped.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template", "iframe":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}
