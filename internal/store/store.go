// Package store defines the persistence interfaces of the pipeline and their
// MongoDB and in-memory implementations. Lookup methods return (nil, nil)
// when nothing matches; callers never treat "not found" as an error.
package store

import (
	"context"
	"time"

	"github.com/GuavaAi/auto-media/internal/types"
)

// ContentRepository owns ingested records.
type ContentRepository interface {
	// LatestByURLHash returns the most recently fetched record for the
	// given source and URL hash, regardless of day.
	LatestByURLHash(ctx context.Context, dataSourceID int64, urlHash string) (*types.IngestedRecord, error)

	// ParentForDay returns the non-discovered record for the given source
	// and URL hash whose fetch time falls in [dayStart, dayEnd). Discovered
	// records never participate in the one-per-day rule.
	ParentForDay(ctx context.Context, dataSourceID int64, urlHash string, dayStart, dayEnd time.Time) (*types.IngestedRecord, error)

	// Insert persists a new record and returns its id.
	Insert(ctx context.Context, rec *types.IngestedRecord) (string, error)

	// Overwrite replaces the record with the given id in place, keeping
	// the id stable.
	Overwrite(ctx context.Context, id string, rec *types.IngestedRecord) error

	// ListDay returns every record fetched in [dayStart, dayEnd), across
	// all sources, newest first.
	ListDay(ctx context.Context, dayStart, dayEnd time.Time) ([]*types.IngestedRecord, error)
}

// EventBundle is one cluster with its sources and excerpt items, persisted
// atomically per day.
type EventBundle struct {
	Cluster types.EventCluster
	Sources []types.ClusterSource
	Items   []types.ClusterItem
}

// ClusterStore owns the per-day event clusters.
type ClusterStore interface {
	// ReplaceDay deletes every cluster for the day and writes the given
	// bundles. Re-running a day is idempotent. An empty bundle list clears
	// the day.
	ReplaceDay(ctx context.Context, day string, bundles []*EventBundle) error

	// ListDay returns the day's clusters, hottest first.
	ListDay(ctx context.Context, day string) ([]types.EventCluster, error)

	// DeleteDay clears the day's clusters, sources and items.
	DeleteDay(ctx context.Context, day string) error
}

// APIKey is one pooled credential for a remote provider.
type APIKey struct {
	ID         string    `bson:"_id,omitempty" json:"id"`
	Provider   string    `bson:"provider" json:"provider"`
	Key        string    `bson:"key" json:"-"`
	Active     bool      `bson:"active" json:"active"`
	LastUsedAt time.Time `bson:"last_used_at" json:"last_used_at"`
	UseCount   int64     `bson:"use_count" json:"use_count"`
}

// KeyPool hands out pooled credentials, least recently used first.
type KeyPool interface {
	// Pick atomically selects the least recently used active key for the
	// provider, stamps its last_used_at and bumps its use_count in the
	// same operation. Returns ErrKeyPoolEmpty when the provider has no
	// active key.
	Pick(ctx context.Context, provider string) (*APIKey, error)
}

// maxReportsPerSource bounds the run-report ring kept per data source.
const maxReportsPerSource = 20

// ReportStore keeps a bounded ring of recent run reports per source.
type ReportStore interface {
	// Append adds a report and drops the oldest ones beyond the ring size.
	Append(ctx context.Context, report *types.RunReport) error

	// Recent returns the source's reports, newest first.
	Recent(ctx context.Context, dataSourceID int64) ([]*types.RunReport, error)
}

// SourceStore records per-source scheduling state.
type SourceStore interface {
	// UpdateRunTimes stamps the last run and the computed next run.
	UpdateRunTimes(ctx context.Context, dataSourceID int64, lastRun, nextRun time.Time) error
}
