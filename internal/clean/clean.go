// Package clean implements rule-based text normalization. Cleaning is
// deterministic and pure: identical input and options always yield identical
// output and content hash.
package clean

import (
	"regexp"
	"strings"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// defaultNoiseKeywords strips the boilerplate lines commonly appended by
// Chinese content platforms (share buttons, copyright footers, read-more
// teasers). Overridable per source via cleaner.noise_keywords.
var defaultNoiseKeywords = []string{
	"免责声明",
	"版权声明",
	"本文来源",
	"转载",
	"上一篇",
	"下一篇",
	"相关阅读",
	"推荐阅读",
	"关注公众号",
	"扫码关注",
	"点击阅读原文",
	"阅读原文",
	"点赞",
	"在看",
	"分享",
	"收藏",
	"更多精彩",
	"返回顶部",
}

var (
	symbolRunRe = regexp.MustCompile(`^[-_=*·•.]{2,}$`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// Clean normalizes raw text into persistable content. It never fails: empty
// input yields empty output with the too_short flag set.
func Clean(raw string, spec config.CleanerSpec) types.CleanedContent {
	noise := spec.NoiseKeywords
	if len(noise) == 0 {
		noise = defaultNoiseKeywords
	}
	minLineLen := spec.MinLineLen
	if minLineLen <= 0 {
		minLineLen = 6
	}
	minTextLen := spec.MinTextLen
	if minTextLen <= 0 {
		minTextLen = 120
	}

	text := normalize(raw)
	rawLen := len([]rune(text))

	lines := splitLines(text)

	var removedByKeyword, removedShortNoise int
	filtered := make([]string, 0, len(lines))
	for _, ln := range lines {
		if ln == "" {
			filtered = append(filtered, "")
			continue
		}
		if containsAny(ln, noise) {
			removedByKeyword++
			continue
		}
		// Very short lines of pure punctuation or digits are button/nav residue.
		if len([]rune(ln)) < minLineLen && (symbolRunRe.MatchString(ln) || digitsRe.MatchString(ln)) {
			removedShortNoise++
			continue
		}
		filtered = append(filtered, ln)
	}

	filtered = compressBlankLines(filtered, 2)

	paragraphs := paragraphize(filtered)
	paragraphs, removedDup := dedupeParagraphs(paragraphs)

	cleanText := strings.Join(paragraphs, "\n\n")
	cleanLen := len([]rune(cleanText))

	hash := ""
	if cleanText != "" {
		hash = types.HashText(cleanText)
	}

	var flags []string
	if cleanLen < minTextLen {
		flags = append(flags, types.FlagTooShort)
	}
	removedTotal := removedByKeyword + removedShortNoise + removedDup
	if rawLen > 0 && len(lines) > 0 {
		ratio := float64(removedTotal) / float64(len(lines))
		if ratio >= 0.5 {
			flags = append(flags, types.FlagHighNoise)
		}
	}

	return types.CleanedContent{
		CleanText: cleanText,
		Stats: types.CleanStats{
			RawLen:              rawLen,
			CleanLen:            cleanLen,
			LineCount:           len(lines),
			ParagraphCount:      len(paragraphs),
			RemovedByKeyword:    removedByKeyword,
			RemovedShortNoise:   removedShortNoise,
			RemovedDupParagraph: removedDup,
		},
		QualityFlags:     flags,
		ContentHashClean: hash,
	}
}

// normalize unifies line endings and trims surrounding whitespace.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func containsAny(line string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(line, k) {
			return true
		}
	}
	return false
}

// compressBlankLines caps runs of empty lines at maxBlank.
func compressBlankLines(lines []string, maxBlank int) []string {
	out := make([]string, 0, len(lines))
	blankRun := 0
	for _, ln := range lines {
		if ln == "" {
			blankRun++
			if blankRun <= maxBlank {
				out = append(out, ln)
			}
			continue
		}
		blankRun = 0
		out = append(out, ln)
	}
	return out
}

// paragraphize joins consecutive non-blank lines into paragraphs.
func paragraphize(lines []string) []string {
	var paragraphs []string
	var buf []string
	flush := func() {
		if len(buf) > 0 {
			paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(buf, "\n")))
			buf = buf[:0]
		}
	}
	for _, ln := range lines {
		if ln == "" {
			flush()
			continue
		}
		buf = append(buf, ln)
	}
	flush()
	return paragraphs
}

// dedupeParagraphs drops exact-duplicate paragraphs, preserving first
// occurrence order.
func dedupeParagraphs(paragraphs []string) ([]string, int) {
	seen := make(map[string]struct{}, len(paragraphs))
	out := make([]string, 0, len(paragraphs))
	removed := 0
	for _, p := range paragraphs {
		key := strings.TrimSpace(p)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			removed++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out, removed
}
