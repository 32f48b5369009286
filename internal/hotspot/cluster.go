// Package hotspot groups a day's ingested records into event clusters and
// scores them. Clustering is greedy and order-stable: identical input always
// yields identical clusters.
package hotspot

import (
	"strings"
	"unicode"

	"github.com/GuavaAi/auto-media/internal/types"
)

// Doc is one clusterable document: an ingested record reduced to the fields
// clustering needs, with its title shingle set precomputed.
type Doc struct {
	Record   *types.IngestedRecord
	shingles map[string]struct{}
}

// NewDoc prepares a record for clustering.
func NewDoc(rec *types.IngestedRecord) Doc {
	return Doc{
		Record:   rec,
		shingles: shingleSet(normalizeTitle(rec.Title)),
	}
}

// Clusterable reports whether the document can participate in clustering:
// a title that survives normalization and non-empty content.
func (d Doc) Clusterable() bool {
	return len(d.shingles) > 0 && strings.TrimSpace(d.Record.Content) != ""
}

// Strategy groups documents into clusters.
type Strategy interface {
	Cluster(docs []Doc) [][]Doc
}

// Greedy is first-fit clustering: each document joins the first cluster
// whose representative (first) document's title is similar enough, else it
// starts its own cluster.
type Greedy struct {
	// Threshold is the minimum Jaccard similarity to join a cluster.
	Threshold float64
}

// Cluster groups docs in input order.
func (g Greedy) Cluster(docs []Doc) [][]Doc {
	var clusters [][]Doc
next:
	for _, doc := range docs {
		for i, cluster := range clusters {
			if jaccard(doc.shingles, cluster[0].shingles) >= g.Threshold {
				clusters[i] = append(clusters[i], doc)
				continue next
			}
		}
		clusters = append(clusters, []Doc{doc})
	}
	return clusters
}

// normalizeTitle lowercases and keeps only letters, digits and CJK unified
// ideographs, so punctuation and spacing differences don't split clusters.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 0x4e00 && r <= 0x9fff:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// shingleSet returns the 2-character shingles of the normalized title. A
// title shorter than two characters contributes itself as the only shingle.
func shingleSet(s string) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{})
	if len(runes) == 0 {
		return set
	}
	if len(runes) < 2 {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+2 <= len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b|. Two empty sets are dissimilar, not equal.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// similarity exposes the representative-vs-doc score for weighting sources.
func similarity(a, b Doc) float64 {
	return jaccard(a.shingles, b.shingles)
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
