package hotspot

import (
	"testing"

	"github.com/GuavaAi/auto-media/internal/types"
)

func doc(id, title, content string) Doc {
	return NewDoc(&types.IngestedRecord{ID: id, Title: title, Content: content})
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"苹果发布新品A!", "苹果发布新品a"},
		{"Hello, World 123", "helloworld123"},
		{"【快讯】重要 消息……", "快讯重要消息"},
		{"!!!???", ""},
	}
	for _, tt := range tests {
		if got := normalizeTitle(tt.in); got != tt.want {
			t.Errorf("normalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShingleSet(t *testing.T) {
	set := shingleSet("苹果发布")
	want := []string{"苹果", "果发", "发布"}
	if len(set) != len(want) {
		t.Fatalf("shingles = %v, want %v", set, want)
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			t.Errorf("missing shingle %q", s)
		}
	}

	single := shingleSet("果")
	if _, ok := single["果"]; !ok || len(single) != 1 {
		t.Errorf("short title shingles = %v, want itself", single)
	}
	if len(shingleSet("")) != 0 {
		t.Error("empty title produced shingles")
	}
}

func TestJaccard(t *testing.T) {
	a := shingleSet("苹果发布新品")
	if got := jaccard(a, a); got != 1.0 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
	if got := jaccard(a, shingleSet("某国大选结果")); got != 0 {
		t.Errorf("disjoint similarity = %v, want 0", got)
	}
	if got := jaccard(nil, a); got != 0 {
		t.Errorf("empty-set similarity = %v, want 0", got)
	}
}

func TestGreedyClustersSimilarTitles(t *testing.T) {
	docs := []Doc{
		doc("1", "苹果发布新品A", "苹果公司今天发布了新品A,包含多项功能更新。"),
		doc("2", "苹果发布新品A2", "另一家媒体也报道了苹果发布新品的消息。"),
		doc("3", "某国大选结果", "某国大选结果于今日公布,引发广泛关注。"),
	}

	clusters := Greedy{Threshold: 0.42}.Cluster(docs)
	if len(clusters) != 2 {
		t.Fatalf("clusters = %d, want 2", len(clusters))
	}
	if len(clusters[0]) != 2 {
		t.Errorf("first cluster size = %d, want 2", len(clusters[0]))
	}
	if clusters[0][0].Record.ID != "1" || clusters[1][0].Record.ID != "3" {
		t.Errorf("unexpected representatives: %s, %s",
			clusters[0][0].Record.ID, clusters[1][0].Record.ID)
	}
}

func TestGreedyDeterministic(t *testing.T) {
	docs := []Doc{
		doc("1", "苹果发布新品A", "内容一"),
		doc("2", "苹果发布新品A2", "内容二"),
		doc("3", "某国大选结果", "内容三"),
		doc("4", "某国大选结果公布", "内容四"),
	}
	first := Greedy{Threshold: 0.42}.Cluster(docs)
	second := Greedy{Threshold: 0.42}.Cluster(docs)

	if len(first) != len(second) {
		t.Fatalf("cluster counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("cluster %d sizes differ", i)
		}
		for j := range first[i] {
			if first[i][j].Record.ID != second[i][j].Record.ID {
				t.Errorf("cluster %d member %d differs", i, j)
			}
		}
	}
}

func TestGreedySimilarityAgainstRepresentativeOnly(t *testing.T) {
	// B is similar to A, C is similar to B but not to A: C must not chain
	// into the cluster through B.
	docs := []Doc{
		doc("a", "甲乙丙丁戊己", "内容"),
		doc("b", "甲乙丙丁庚辛", "内容"),
		doc("c", "庚辛壬癸子丑", "内容"),
	}
	clusters := Greedy{Threshold: 0.4}.Cluster(docs)
	for _, cluster := range clusters {
		for _, d := range cluster {
			if d.Record.ID == "c" && cluster[0].Record.ID == "a" {
				t.Error("c chained into a's cluster via b")
			}
		}
	}
}

func TestClusterable(t *testing.T) {
	if doc("1", "!!!", "有内容").Clusterable() {
		t.Error("punctuation-only title should not be clusterable")
	}
	if doc("2", "正常标题", "   ").Clusterable() {
		t.Error("blank content should not be clusterable")
	}
	if !doc("3", "正常标题", "有内容").Clusterable() {
		t.Error("normal doc should be clusterable")
	}
}
