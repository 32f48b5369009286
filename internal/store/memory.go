package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GuavaAi/auto-media/internal/types"
)

// Memory is an in-memory implementation of every store interface. It backs
// tests and dry runs; semantics mirror the Mongo store.
type Memory struct {
	mu       sync.Mutex
	contents []*types.IngestedRecord
	bundles  map[string][]*EventBundle // day -> bundles
	keys     []*APIKey
	reports  []*types.RunReport
	runTimes map[int64][2]time.Time
	nextID   int
}

var (
	_ ContentRepository = (*Memory)(nil)
	_ ClusterStore      = memClusterView{}
	_ KeyPool           = (*Memory)(nil)
	_ ReportStore       = (*Memory)(nil)
	_ SourceStore       = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bundles:  make(map[string][]*EventBundle),
		runTimes: make(map[int64][2]time.Time),
	}
}

func (m *Memory) genID() string {
	m.nextID++
	return fmt.Sprintf("mem-%d", m.nextID)
}

// --- ContentRepository ---

func (m *Memory) LatestByURLHash(_ context.Context, dataSourceID int64, urlHash string) (*types.IngestedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *types.IngestedRecord
	for _, rec := range m.contents {
		if rec.DataSourceID != dataSourceID || rec.URLHash != urlHash {
			continue
		}
		if best == nil || rec.FetchedAt.After(best.FetchedAt) {
			best = rec
		}
	}
	return cloneRecord(best), nil
}

func (m *Memory) ParentForDay(_ context.Context, dataSourceID int64, urlHash string, dayStart, dayEnd time.Time) (*types.IngestedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *types.IngestedRecord
	for _, rec := range m.contents {
		if rec.DataSourceID != dataSourceID || rec.URLHash != urlHash || rec.Extra.IsDiscovered {
			continue
		}
		if rec.FetchedAt.Before(dayStart) || !rec.FetchedAt.Before(dayEnd) {
			continue
		}
		if best == nil || rec.FetchedAt.After(best.FetchedAt) {
			best = rec
		}
	}
	return cloneRecord(best), nil
}

func (m *Memory) Insert(_ context.Context, rec *types.IngestedRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = m.genID()
	}
	stored := *rec
	m.contents = append(m.contents, &stored)
	return rec.ID, nil
}

func (m *Memory) Overwrite(_ context.Context, id string, rec *types.IngestedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.contents {
		if existing.ID == id {
			stored := *rec
			stored.ID = id
			m.contents[i] = &stored
			rec.ID = id
			return nil
		}
	}
	return fmt.Errorf("overwrite content %s: no such record", id)
}

func (m *Memory) ListDay(_ context.Context, dayStart, dayEnd time.Time) ([]*types.IngestedRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []*types.IngestedRecord
	for _, rec := range m.contents {
		if !rec.FetchedAt.Before(dayStart) && rec.FetchedAt.Before(dayEnd) {
			recs = append(recs, cloneRecord(rec))
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].FetchedAt.After(recs[j].FetchedAt) })
	return recs, nil
}

// Count returns the number of stored records. Test helper.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contents)
}

// --- ClusterStore ---

func (m *Memory) ReplaceDay(_ context.Context, day string, bundles []*EventBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]*EventBundle, 0, len(bundles))
	for _, b := range bundles {
		cp := *b
		if cp.Cluster.ID == "" {
			cp.Cluster.ID = m.genID()
		}
		for i := range cp.Sources {
			cp.Sources[i].EventID = cp.Cluster.ID
		}
		for i := range cp.Items {
			cp.Items[i].EventID = cp.Cluster.ID
		}
		stored = append(stored, &cp)
	}
	m.bundles[day] = stored
	return nil
}

func (m *Memory) ListDayClusters(_ context.Context, day string) ([]types.EventCluster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bundles := m.bundles[day]
	clusters := make([]types.EventCluster, 0, len(bundles))
	for _, b := range bundles {
		clusters = append(clusters, b.Cluster)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].HotScore > clusters[j].HotScore })
	return clusters, nil
}

// DeleteDay clears the day's clusters, sources and items.
func (m *Memory) DeleteDay(_ context.Context, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bundles, day)
	return nil
}

// Clusters exposes the store as a ClusterStore. ListDay on clusters is
// renamed to ListDayClusters on Memory itself to avoid colliding with the
// content-side ListDay, same as the Mongo store.
func (m *Memory) Clusters() ClusterStore { return memClusterView{m} }

type memClusterView struct{ m *Memory }

func (v memClusterView) ReplaceDay(ctx context.Context, day string, bundles []*EventBundle) error {
	return v.m.ReplaceDay(ctx, day, bundles)
}

func (v memClusterView) ListDay(ctx context.Context, day string) ([]types.EventCluster, error) {
	return v.m.ListDayClusters(ctx, day)
}

func (v memClusterView) DeleteDay(ctx context.Context, day string) error {
	return v.m.DeleteDay(ctx, day)
}

// DayBundles returns the stored bundles for a day. Test helper.
func (m *Memory) DayBundles(day string) []*EventBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundles[day]
}

// --- KeyPool ---

// AddKey registers a credential in the pool.
func (m *Memory) AddKey(key APIKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key.ID == "" {
		key.ID = m.genID()
	}
	m.keys = append(m.keys, &key)
}

func (m *Memory) Pick(_ context.Context, provider string) (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *APIKey
	for _, k := range m.keys {
		if k.Provider != provider || !k.Active {
			continue
		}
		if best == nil || k.LastUsedAt.Before(best.LastUsedAt) {
			best = k
		}
	}
	if best == nil {
		return nil, fmt.Errorf("provider %s: %w", provider, types.ErrKeyPoolEmpty)
	}
	best.LastUsedAt = time.Now().UTC()
	best.UseCount++
	cp := *best
	return &cp, nil
}

// --- ReportStore ---

func (m *Memory) Append(_ context.Context, report *types.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if report.ID == "" {
		report.ID = m.genID()
	}
	cp := *report
	m.reports = append(m.reports, &cp)

	var kept []*types.RunReport
	perSource := 0
	for i := len(m.reports) - 1; i >= 0; i-- {
		r := m.reports[i]
		if r.DataSourceID == report.DataSourceID {
			perSource++
			if perSource > maxReportsPerSource {
				continue
			}
		}
		kept = append([]*types.RunReport{r}, kept...)
	}
	m.reports = kept
	return nil
}

func (m *Memory) Recent(_ context.Context, dataSourceID int64) ([]*types.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.RunReport
	for _, r := range m.reports {
		if r.DataSourceID == dataSourceID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

// --- SourceStore ---

func (m *Memory) UpdateRunTimes(_ context.Context, dataSourceID int64, lastRun, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runTimes[dataSourceID] = [2]time.Time{lastRun, nextRun}
	return nil
}

// RunTimes returns the stamped (last, next) run times for a source. Test helper.
func (m *Memory) RunTimes(dataSourceID int64) (last, next time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.runTimes[dataSourceID]
	return t[0], t[1], ok
}

func cloneRecord(rec *types.IngestedRecord) *types.IngestedRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}
