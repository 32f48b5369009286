package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GuavaAi/auto-media/internal/types"
)

func TestKeyPoolPicksLeastRecentlyUsed(t *testing.T) {
	mem := NewMemory()
	mem.AddKey(APIKey{Provider: "scrapeapi", Key: "old", Active: true, LastUsedAt: time.Now().Add(-time.Hour)})
	mem.AddKey(APIKey{Provider: "scrapeapi", Key: "fresh", Active: true, LastUsedAt: time.Now()})
	mem.AddKey(APIKey{Provider: "scrapeapi", Key: "inactive", Active: false, LastUsedAt: time.Time{}})

	key, err := mem.Pick(context.Background(), "scrapeapi")
	if err != nil {
		t.Fatalf("pick: %v", err)
	}
	if key.Key != "old" {
		t.Errorf("picked %q, want least recently used active key", key.Key)
	}

	// The pick stamps last_used_at, so the other key comes next.
	key2, err := mem.Pick(context.Background(), "scrapeapi")
	if err != nil {
		t.Fatalf("second pick: %v", err)
	}
	if key2.Key != "fresh" {
		t.Errorf("second pick = %q, want rotation to the other key", key2.Key)
	}
}

func TestKeyPoolEmpty(t *testing.T) {
	mem := NewMemory()
	mem.AddKey(APIKey{Provider: "other", Key: "x", Active: true})

	_, err := mem.Pick(context.Background(), "scrapeapi")
	if !errors.Is(err, types.ErrKeyPoolEmpty) {
		t.Fatalf("error = %v, want ErrKeyPoolEmpty", err)
	}
}

func TestReportRingBounded(t *testing.T) {
	mem := NewMemory()
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxReportsPerSource+5; i++ {
		err := mem.Append(context.Background(), &types.RunReport{
			DataSourceID: 1,
			TriggeredAt:  base.Add(time.Duration(i) * time.Minute),
			Ingested:     i,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	reports, err := mem.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(reports) != maxReportsPerSource {
		t.Fatalf("reports = %d, want ring of %d", len(reports), maxReportsPerSource)
	}
	if reports[0].Ingested != maxReportsPerSource+4 {
		t.Errorf("newest report Ingested = %d, want the last appended", reports[0].Ingested)
	}
}

func TestOverwriteKeepsID(t *testing.T) {
	mem := NewMemory()
	id, err := mem.Insert(context.Background(), &types.IngestedRecord{URLHash: "h", Content: "v1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mem.Overwrite(context.Background(), id, &types.IngestedRecord{URLHash: "h", Content: "v2"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if mem.Count() != 1 {
		t.Errorf("count = %d, want 1", mem.Count())
	}
	if err := mem.Overwrite(context.Background(), "missing", &types.IngestedRecord{}); err == nil {
		t.Error("overwrite of missing id should fail")
	}
}

func TestParentForDaySkipsDiscovered(t *testing.T) {
	mem := NewMemory()
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	mem.Insert(context.Background(), &types.IngestedRecord{
		DataSourceID: 1, URLHash: "h", FetchedAt: day.Add(time.Hour),
		Extra: types.RecordExtra{IsDiscovered: true},
	})

	rec, err := mem.ParentForDay(context.Background(), 1, "h", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec != nil {
		t.Error("discovered record returned by parent lookup")
	}
}
