package hotspot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/store"
	"github.com/GuavaAi/auto-media/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

const testDay = "2026-09-01"

func seedDay(t *testing.T, mem *store.Memory, recs ...*types.IngestedRecord) {
	t.Helper()
	dayStart, err := time.ParseInLocation("2006-01-02", testDay, time.Local)
	if err != nil {
		t.Fatal(err)
	}
	for i, rec := range recs {
		rec.FetchedAt = dayStart.Add(time.Duration(i+1) * time.Hour)
		if _, err := mem.Insert(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestBuilder(mem *store.Memory) *Builder {
	return NewBuilder(mem, mem.Clusters(), config.HotspotConfig{Limit: 20, SimThreshold: 0.42}, testLogger)
}

func TestRunNoDayData(t *testing.T) {
	mem := store.NewMemory()
	b := newTestBuilder(mem)

	_, err := b.Run(context.Background(), testDay)
	var noData *types.NoDayDataError
	if !errors.As(err, &noData) {
		t.Fatalf("error = %v, want NoDayDataError", err)
	}
	if noData.Day != testDay {
		t.Errorf("Day = %q, want %q", noData.Day, testDay)
	}
}

func TestRunZeroClusterableIsEmptySuccess(t *testing.T) {
	mem := store.NewMemory()
	seedDay(t, mem, &types.IngestedRecord{Title: "!!!", Content: "有内容但标题不可聚类"})
	b := newTestBuilder(mem)

	bundles, err := b.Run(context.Background(), testDay)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(bundles) != 0 {
		t.Errorf("bundles = %d, want 0", len(bundles))
	}
}

func TestRunInvalidDay(t *testing.T) {
	b := newTestBuilder(store.NewMemory())
	if _, err := b.Run(context.Background(), "09/01/2026"); err == nil {
		t.Fatal("expected error for malformed day")
	}
}

func TestRunClustersAndScores(t *testing.T) {
	longContent := "苹果公司今天正式发布了新品A系列产品线更新。" +
		"发布会上公布了3项关键参数,售价为999元。" +
		"分析师表示“这是近年来最重要的一次更新”。" +
		"该产品将于下个月在全球50个市场同步上市销售。"

	mem := store.NewMemory()
	seedDay(t, mem,
		&types.IngestedRecord{URL: "https://a.test/1", Title: "苹果发布新品A", Content: longContent},
		&types.IngestedRecord{URL: "https://a.test/2", Title: "苹果发布新品A2", Content: "苹果发布新品的简短报道。"},
		&types.IngestedRecord{URL: "https://b.test/1", Title: "某国大选结果", Content: "某国大选结果今日公布,计票工作已经全部完成。"},
	)
	b := newTestBuilder(mem)

	bundles, err := b.Run(context.Background(), testDay)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("bundles = %d, want 2", len(bundles))
	}

	// The two-document cluster must rank first.
	top := bundles[0]
	if top.Cluster.ClusterSize != 2 {
		t.Fatalf("top cluster size = %d, want 2", top.Cluster.ClusterSize)
	}
	// Leader is the longer document.
	if top.Cluster.Title != "苹果发布新品A" {
		t.Errorf("top title = %q, want leader's title", top.Cluster.Title)
	}
	if len(top.Sources) != 2 {
		t.Errorf("top sources = %d, want 2", len(top.Sources))
	}

	var bullets, quotes int
	for _, item := range top.Items {
		switch item.Kind {
		case types.ItemBullet:
			bullets++
		case types.ItemQuote:
			quotes++
		}
	}
	if bullets == 0 {
		t.Error("no bullet items extracted")
	}
	if quotes == 0 {
		t.Error("no quote items extracted despite quoted sentence")
	}

	wantScore := float64(top.Cluster.ClusterSize)*1.5 + float64(bullets)*0.3 + float64(quotes)*0.2
	if top.Cluster.HotScore != wantScore {
		t.Errorf("HotScore = %v, want %v", top.Cluster.HotScore, wantScore)
	}

	// Persisted and queryable, hottest first.
	stored, err := mem.ListDayClusters(context.Background(), testDay)
	if err != nil || len(stored) != 2 {
		t.Fatalf("stored clusters = %v (%v), want 2", stored, err)
	}
	if stored[0].HotScore < stored[1].HotScore {
		t.Error("stored clusters not ordered by hot score")
	}
}

func TestRunReplaceIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	seedDay(t, mem,
		&types.IngestedRecord{Title: "苹果发布新品A", Content: "苹果公司今天发布了新品A,包含多项功能更新。"},
	)
	b := newTestBuilder(mem)

	first, err := b.Run(context.Background(), testDay)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := b.Run(context.Background(), testDay)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("bundle counts differ: %d vs %d", len(first), len(second))
	}
	stored, _ := mem.ListDayClusters(context.Background(), testDay)
	if len(stored) != len(second) {
		t.Errorf("stored = %d clusters after re-run, want %d", len(stored), len(second))
	}
}

func TestRunLimitCaps(t *testing.T) {
	mem := store.NewMemory()
	recs := []*types.IngestedRecord{
		{Title: "完全不同的话题甲", Content: "话题甲的正文内容,足够长可以聚类。"},
		{Title: "截然另类的内容乙", Content: "话题乙的正文内容,足够长可以聚类。"},
		{Title: "毫无关联的事件丙", Content: "话题丙的正文内容,足够长可以聚类。"},
	}
	seedDay(t, mem, recs...)
	b := NewBuilder(mem, mem.Clusters(), config.HotspotConfig{Limit: 2, SimThreshold: 0.42}, testLogger)

	bundles, err := b.Run(context.Background(), testDay)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(bundles) != 2 {
		t.Errorf("bundles = %d, want limit of 2", len(bundles))
	}
}

func TestExcerpts(t *testing.T) {
	content := "短句。" +
		"这是一条足够长且包含数字2026的句子!" +
		"这是另一条足够长但没有任何数字的普通句子。" +
		"他说“引用的原话内容足够长可以入选”。"

	bullets, quotes := excerpts(content)

	if len(bullets) == 0 {
		t.Fatal("no bullets")
	}
	// Digit-carrying sentence outranks the digitless one of similar length.
	if !strings.Contains(bullets[0].text, "2026") {
		t.Errorf("top bullet = %q, want the digit-carrying sentence", bullets[0].text)
	}
	if s := bulletsCheck(bullets); s != "" {
		t.Fatalf("bullet too short: %q", s)
	}
	if len(quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(quotes))
	}
	base := sentenceScore(quotes[0].text)
	if quotes[0].score != base+quoteBonus {
		t.Errorf("quote score = %v, want base %v + bonus", quotes[0].score, base)
	}
}

func bulletsCheck(bullets []scoredSentence) string {
	for _, b := range bullets {
		if len([]rune(b.text)) < minSentenceRunes {
			return b.text
		}
	}
	return ""
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("长", maxSummaryRunes+10)
	got := truncateRunes(long, maxSummaryRunes)
	if len([]rune(got)) != maxSummaryRunes+3 {
		t.Errorf("truncated length = %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncation marker missing")
	}
	if truncateRunes("短", maxSummaryRunes) != "短" {
		t.Error("short text modified")
	}
}
