package extract

import (
	"strings"
	"testing"

	"github.com/GuavaAi/auto-media/internal/config"
)

const samplePage = `<!DOCTYPE html>
<html><head><title>测试页面标题</title></head>
<body>
<nav>导航栏 链接一 链接二</nav>
<div class="article">
  <p>这是文章的第一段正文内容。</p>
  <p>这是文章的第二段正文内容。</p>
</div>
<script>console.log("noise")</script>
<footer>页脚版权信息</footer>
</body></html>`

func TestApplySelectorWinsOverHeuristic(t *testing.T) {
	scope := &config.ParserSpec{CSSSelector: "div.article"}
	out := Apply(samplePage, "https://example.com/a", scope, config.ExtractorSpec{})

	if out.Extractor != ByCSSSelector {
		t.Fatalf("Extractor = %q, want %q", out.Extractor, ByCSSSelector)
	}
	if !strings.Contains(out.MainText, "第一段正文") || !strings.Contains(out.MainText, "第二段正文") {
		t.Errorf("selector content missing: %q", out.MainText)
	}
	if strings.Contains(out.MainText, "导航栏") || strings.Contains(out.MainText, "页脚") {
		t.Errorf("selector leaked content outside scope: %q", out.MainText)
	}
}

func TestApplyEmptySelectorMatchIsFilteredOutNotError(t *testing.T) {
	scope := &config.ParserSpec{CSSSelector: "div.no-such-class"}
	out := Apply(samplePage, "https://example.com/a", scope, config.ExtractorSpec{})

	if out.MainText != "" {
		t.Errorf("MainText = %q, want empty for non-matching selector", out.MainText)
	}
	if out.Extractor != ByCSSSelector {
		t.Errorf("Extractor = %q, want %q", out.Extractor, ByCSSSelector)
	}
}

func TestApplyXPathSelector(t *testing.T) {
	scope := &config.ParserSpec{XPath: `//div[@class="article"]`}
	out := Apply(samplePage, "https://example.com/a", scope, config.ExtractorSpec{})

	if out.Extractor != ByXPath {
		t.Fatalf("Extractor = %q, want %q", out.Extractor, ByXPath)
	}
	if !strings.Contains(out.MainText, "第一段正文") {
		t.Errorf("xpath content missing: %q", out.MainText)
	}
}

func TestApplyCSSWinsOverXPath(t *testing.T) {
	scope := &config.ParserSpec{CSSSelector: "div.article", XPath: "//nav"}
	out := Apply(samplePage, "https://example.com/a", scope, config.ExtractorSpec{})
	if out.Extractor != ByCSSSelector {
		t.Errorf("Extractor = %q, want css to win over xpath", out.Extractor)
	}
}

func TestMainTextNonHTMLPassthrough(t *testing.T) {
	raw := `{"key": "value", "items": [1, 2, 3]}`
	out := MainText(raw, "https://api.example.com/data", config.ExtractorSpec{})

	if out.Extractor != ByRaw {
		t.Errorf("Extractor = %q, want %q", out.Extractor, ByRaw)
	}
	if out.MainText != raw {
		t.Errorf("MainText = %q, want passthrough", out.MainText)
	}
}

func TestFullPageSkipsScripts(t *testing.T) {
	disabled := false
	out := MainText(samplePage, "https://example.com/a", config.ExtractorSpec{UseReadability: &disabled})

	if out.Extractor != ByFullPage {
		t.Fatalf("Extractor = %q, want %q", out.Extractor, ByFullPage)
	}
	if strings.Contains(out.MainText, "console.log") {
		t.Errorf("script content leaked: %q", out.MainText)
	}
	if out.Title != "测试页面标题" {
		t.Errorf("Title = %q, want page title", out.Title)
	}
}

func TestKeywordFilters(t *testing.T) {
	tests := []struct {
		name  string
		scope config.ParserSpec
		empty bool
	}{
		{"include hit", config.ParserSpec{CSSSelector: "div.article", IncludeKeywords: []string{"正文"}}, false},
		{"include miss", config.ParserSpec{CSSSelector: "div.article", IncludeKeywords: []string{"不存在的词"}}, true},
		{"exclude hit", config.ParserSpec{CSSSelector: "div.article", ExcludeKeywords: []string{"第二段"}}, true},
		{"exclude miss", config.ParserSpec{CSSSelector: "div.article", ExcludeKeywords: []string{"不存在的词"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Apply(samplePage, "https://example.com/a", &tt.scope, config.ExtractorSpec{})
			if (out.MainText == "") != tt.empty {
				t.Errorf("MainText empty = %v, want %v (%q)", out.MainText == "", tt.empty, out.MainText)
			}
		})
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"<!DOCTYPE html><html></html>", true},
		{"<html><body>x</body></html>", true},
		{"plain text content", false},
		{`{"json": true}`, false},
		{"", false},
		{"text with a <div>block</div>", true},
	}
	for _, tt := range tests {
		if got := LooksLikeHTML(tt.in); got != tt.want {
			t.Errorf("LooksLikeHTML(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
