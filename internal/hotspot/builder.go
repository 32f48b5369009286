package hotspot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/store"
	"github.com/GuavaAi/auto-media/internal/types"
)

// Scoring and excerpt constants.
const (
	minSentenceRunes = 10
	maxBullets       = 5
	maxQuotes        = 3
	maxSummaryRunes  = 8000

	sizeWeight   = 1.5
	bulletWeight = 0.3
	quoteWeight  = 0.2
	quoteBonus   = 0.2
	digitBonus   = 0.6
)

// sentenceEnders split leader content into candidate excerpts.
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true,
	'!': true, '?': true, '；': true, ';': true,
}

// quoteMarks mark a sentence as a quotation candidate.
var quoteMarks = []string{"“", "”", "「", "」", "『", "』", "\""}

// Builder turns one day's ingested records into persisted event clusters.
type Builder struct {
	contents store.ContentRepository
	clusters store.ClusterStore
	strategy Strategy
	limit    int
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder creates a Builder with the configured similarity threshold and
// per-day cluster limit (clamped to [1, 200]).
func NewBuilder(contents store.ContentRepository, clusters store.ClusterStore, cfg config.HotspotConfig, logger *slog.Logger) *Builder {
	threshold := cfg.SimThreshold
	if threshold <= 0 {
		threshold = 0.42
	}
	limit := cfg.Limit
	if limit < 1 {
		limit = 1
	}
	if limit > 200 {
		limit = 200
	}
	return &Builder{
		contents: contents,
		clusters: clusters,
		strategy: Greedy{Threshold: threshold},
		limit:    limit,
		logger:   logger.With("component", "hotspot_builder"),
		now:      time.Now,
	}
}

// Run clusters the given day ("YYYY-MM-DD") and replaces its stored clusters.
// A day with no ingested records fails with NoDayDataError; a day whose
// records yield no clusterable documents succeeds with an empty result.
func (b *Builder) Run(ctx context.Context, day string) ([]*store.EventBundle, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)

	recs, err := b.contents.ListDay(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &types.NoDayDataError{Day: day}
	}

	docs := make([]Doc, 0, len(recs))
	for _, rec := range recs {
		doc := NewDoc(rec)
		if doc.Clusterable() {
			docs = append(docs, doc)
		}
	}
	b.logger.Info("clustering day", "day", day, "records", len(recs), "clusterable", len(docs))

	clusters := b.strategy.Cluster(docs)
	bundles := make([]*store.EventBundle, 0, len(clusters))
	createdAt := b.now()
	for _, cluster := range clusters {
		bundles = append(bundles, buildBundle(day, cluster, createdAt))
	}

	sort.SliceStable(bundles, func(i, j int) bool {
		return bundles[i].Cluster.HotScore > bundles[j].Cluster.HotScore
	})
	if len(bundles) > b.limit {
		bundles = bundles[:b.limit]
	}

	if err := b.clusters.ReplaceDay(ctx, day, bundles); err != nil {
		return nil, err
	}
	b.logger.Info("day clustered", "day", day, "clusters", len(bundles))
	return bundles, nil
}

// buildBundle assembles one persisted cluster: leader-based title and
// summary, ranked bullet and quote excerpts, and the hotness score.
func buildBundle(day string, cluster []Doc, createdAt time.Time) *store.EventBundle {
	leader := pickLeader(cluster)
	rep := cluster[0]

	bullets, quotes := excerpts(leader.Record.Content)

	hot := float64(len(cluster))*sizeWeight +
		float64(len(bullets))*bulletWeight +
		float64(len(quotes))*quoteWeight

	bundle := &store.EventBundle{
		Cluster: types.EventCluster{
			Day:         day,
			Title:       leader.Record.Title,
			Summary:     truncateRunes(leader.Record.Content, maxSummaryRunes),
			HotScore:    hot,
			ClusterSize: len(cluster),
			CreatedAt:   createdAt,
		},
	}

	for _, doc := range cluster {
		weight := similarity(rep, doc)
		if doc.Record.ID == leader.Record.ID {
			weight = 1.0
		}
		bundle.Sources = append(bundle.Sources, types.ClusterSource{
			ContentID: doc.Record.ID,
			URL:       doc.Record.URL,
			Title:     doc.Record.Title,
			Weight:    weight,
		})
	}

	pos := 0
	for _, s := range bullets {
		bundle.Items = append(bundle.Items, types.ClusterItem{
			Kind:            types.ItemBullet,
			Text:            s.text,
			SourceURL:       leader.Record.URL,
			SourceContentID: leader.Record.ID,
			Position:        pos,
			Score:           s.score,
		})
		pos++
	}
	for _, s := range quotes {
		bundle.Items = append(bundle.Items, types.ClusterItem{
			Kind:            types.ItemQuote,
			Text:            s.text,
			SourceURL:       leader.Record.URL,
			SourceContentID: leader.Record.ID,
			Position:        pos,
			Score:           s.score,
		})
		pos++
	}
	return bundle
}

// pickLeader selects the cluster's most substantial document: longest
// content, title length breaking ties, input order breaking the rest.
func pickLeader(cluster []Doc) Doc {
	leader := cluster[0]
	for _, doc := range cluster[1:] {
		cl, ll := utf8.RuneCountInString(doc.Record.Content), utf8.RuneCountInString(leader.Record.Content)
		switch {
		case cl > ll:
			leader = doc
		case cl == ll &&
			utf8.RuneCountInString(doc.Record.Title) > utf8.RuneCountInString(leader.Record.Title):
			leader = doc
		}
	}
	return leader
}

type scoredSentence struct {
	text  string
	score float64
}

// excerpts splits content into sentences and ranks them: the top bullets
// overall, and the top quote-marked sentences with their bonus applied.
// Bullets are deduplicated by normalized text.
func excerpts(content string) (bullets, quotes []scoredSentence) {
	sentences := splitSentences(content)

	scored := make([]scoredSentence, 0, len(sentences))
	for _, s := range sentences {
		scored = append(scored, scoredSentence{text: s, score: sentenceScore(s)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	seen := make(map[string]bool)
	for _, s := range scored {
		if len(bullets) >= maxBullets {
			break
		}
		key := normalizeTitle(s.text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		bullets = append(bullets, s)
	}

	for _, s := range scored {
		if len(quotes) >= maxQuotes {
			break
		}
		if !isQuoted(s.text) {
			continue
		}
		quotes = append(quotes, scoredSentence{text: s.text, score: s.score + quoteBonus})
	}
	return bullets, quotes
}

// splitSentences cuts on Chinese and Latin sentence enders, keeping only
// sentences of at least minSentenceRunes characters.
func splitSentences(content string) []string {
	var sentences []string
	var cur []rune
	flush := func() {
		s := strings.TrimSpace(string(cur))
		if utf8.RuneCountInString(s) >= minSentenceRunes {
			sentences = append(sentences, s)
		}
		cur = cur[:0]
	}
	for _, r := range content {
		if sentenceEnders[r] {
			flush()
			continue
		}
		cur = append(cur, r)
	}
	flush()
	return sentences
}

// sentenceScore favors longer sentences (capped) and ones carrying numbers.
func sentenceScore(s string) float64 {
	score := float64(utf8.RuneCountInString(s)) / 80.0
	if score > 2.0 {
		score = 2.0
	}
	if hasDigit(s) {
		score += digitBonus
	}
	return score
}

func isQuoted(s string) bool {
	for _, m := range quoteMarks {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
