package types

import "time"

// Cluster item kinds.
const (
	ItemBullet = "bullet"
	ItemQuote  = "quote"
)

// EventCluster is one detected hot topic for a calendar day.
type EventCluster struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Day         string    `bson:"day" json:"day"` // YYYY-MM-DD
	Title       string    `bson:"title" json:"title"`
	Summary     string    `bson:"summary,omitempty" json:"summary,omitempty"`
	HotScore    float64   `bson:"hot_score" json:"hot_score"`
	Keywords    []string  `bson:"keywords,omitempty" json:"keywords,omitempty"`
	ClusterSize int       `bson:"cluster_size" json:"cluster_size"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// ClusterSource links an ingested record to the cluster it belongs to.
type ClusterSource struct {
	EventID   string  `bson:"event_id" json:"event_id"`
	ContentID string  `bson:"content_id" json:"content_id"`
	URL       string  `bson:"url,omitempty" json:"url,omitempty"`
	Title     string  `bson:"title,omitempty" json:"title,omitempty"`
	Weight    float64 `bson:"weight" json:"weight"`
}

// ClusterItem is one ranked excerpt (bullet or quote) extracted from a
// cluster's leader document.
type ClusterItem struct {
	EventID         string  `bson:"event_id" json:"event_id"`
	Kind            string  `bson:"kind" json:"kind"`
	Text            string  `bson:"text" json:"text"`
	SourceURL       string  `bson:"source_url,omitempty" json:"source_url,omitempty"`
	SourceContentID string  `bson:"source_content_id,omitempty" json:"source_content_id,omitempty"`
	Position        int     `bson:"position" json:"position"`
	Score           float64 `bson:"score" json:"score"`
}

// RunStats aggregates per-URL outcomes of one orchestrator run.
type RunStats struct {
	DedupSkipped int `bson:"dedup_skipped" json:"dedup_skipped"`
	EmptySkipped int `bson:"empty_skipped" json:"empty_skipped"`
	FetchFailed  int `bson:"fetch_failed" json:"fetch_failed"`
}

// SkipDetail records why one URL produced no record.
type SkipDetail struct {
	URL              string    `bson:"url" json:"url"`
	Reason           string    `bson:"reason" json:"reason"`
	MatchedRecordID  string    `bson:"matched_record_id,omitempty" json:"matched_record_id,omitempty"`
	MatchedFetchedAt time.Time `bson:"matched_fetched_at,omitempty" json:"matched_fetched_at,omitempty"`
}

// Skip reasons used in SkipDetail.
const (
	SkipParentDailyDedup = "parent_daily_dedup"
	SkipDedupHashClean   = "dedup_hash_clean_same"
	SkipDedupHashRaw     = "dedup_hash_raw_same"
	SkipEmpty            = "empty"
)

// MaxSkipDetails bounds the number of skip details kept in a report.
const MaxSkipDetails = 50

// RunReport is the operator-facing record of one orchestrator run. Reports
// are append-only; the store keeps a bounded ring of recent ones per source.
type RunReport struct {
	ID             string       `bson:"_id,omitempty" json:"id"`
	DataSourceID   int64        `bson:"datasource_id" json:"datasource_id"`
	TriggeredAt    time.Time    `bson:"triggered_at" json:"triggered_at"`
	Force          bool         `bson:"force" json:"force"`
	Ingested       int          `bson:"ingested" json:"ingested"`
	Stats          RunStats     `bson:"stats" json:"stats"`
	SkippedDetails []SkipDetail `bson:"skipped_details,omitempty" json:"skipped_details,omitempty"`
}
