package types

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"
)

// Source types recognized by the ingestion orchestrator.
const (
	SourceURL      = "url"
	SourceAPI      = "api"
	SourceDocument = "document"
	SourceWebhook  = "webhook"
)

// FetchRequest describes a single fetch attempt. It is a value passed to a
// fetcher and never mutated by it.
type FetchRequest struct {
	// URL is the target URL to fetch.
	URL string

	// Headers are custom HTTP headers sent with the request.
	Headers http.Header

	// Timeout overrides the fetcher's default per-request timeout.
	Timeout time.Duration
}

// FetchResult is the raw outcome of one fetch attempt. It is transient and
// never persisted directly.
type FetchResult struct {
	// URL is the requested URL.
	URL string

	// HTML is the raw page HTML (or plain text for non-HTML engines).
	HTML string

	// StatusCode is the HTTP status, 0 when the engine cannot report one.
	StatusCode int

	// FinalURL is the URL after redirects; empty means same as URL.
	FinalURL string

	// Meta stores engine-specific metadata (task ids, provider markdown, etc.).
	Meta map[string]any
}

// ExtractedContent is the main-text view of a fetched page.
type ExtractedContent struct {
	// MainText is the extracted visible text. Empty means "filtered out".
	MainText string

	// Extractor names the strategy that produced MainText:
	// css_selector, xpath, readability, fullpage or raw.
	Extractor string

	// Title is best-effort page title metadata.
	Title string

	// Meta carries extractor diagnostics (e.g. a readability fallback error).
	Meta map[string]string
}

// CleanStats summarizes what the cleaner did to a text.
type CleanStats struct {
	RawLen              int `bson:"raw_len" json:"raw_len"`
	CleanLen            int `bson:"clean_len" json:"clean_len"`
	LineCount           int `bson:"line_count" json:"line_count"`
	ParagraphCount      int `bson:"paragraph_count" json:"paragraph_count"`
	RemovedByKeyword    int `bson:"removed_by_keyword" json:"removed_by_keyword"`
	RemovedShortNoise   int `bson:"removed_short_noise" json:"removed_short_noise"`
	RemovedDupParagraph int `bson:"removed_dup_paragraph" json:"removed_dup_paragraph"`
}

// Quality flags set by the cleaner.
const (
	FlagTooShort  = "too_short"
	FlagHighNoise = "high_noise"
)

// CleanedContent is the cleaner's output for one text.
type CleanedContent struct {
	// CleanText is the normalized text that gets persisted.
	CleanText string

	// Stats records lengths and removal counters for diagnostics.
	Stats CleanStats

	// QualityFlags holds zero or more of FlagTooShort / FlagHighNoise.
	QualityFlags []string

	// ContentHashClean is a stable digest of CleanText, used as the dedup key.
	// Empty when CleanText is empty.
	ContentHashClean string
}

// RecordExtra is the metadata blob persisted alongside an ingested record.
type RecordExtra struct {
	StatusCode       int               `bson:"status_code,omitempty" json:"status_code,omitempty"`
	FinalURL         string            `bson:"final_url,omitempty" json:"final_url,omitempty"`
	IsDiscovered     bool              `bson:"is_discovered" json:"is_discovered"`
	Extractor        string            `bson:"extractor,omitempty" json:"extractor,omitempty"`
	ExtractorMeta    map[string]string `bson:"extractor_meta,omitempty" json:"extractor_meta,omitempty"`
	ContentHash      string            `bson:"content_hash,omitempty" json:"content_hash,omitempty"`
	ContentHashClean string            `bson:"content_hash_clean,omitempty" json:"content_hash_clean,omitempty"`
	CleanStats       CleanStats        `bson:"clean_stats" json:"clean_stats"`
	QualityFlags     []string          `bson:"quality_flags,omitempty" json:"quality_flags,omitempty"`

	// Search-mode provenance.
	Query          string  `bson:"query,omitempty" json:"query,omitempty"`
	SearchProvider string  `bson:"search_provider,omitempty" json:"search_provider,omitempty"`
	SearchRank     int     `bson:"search_rank,omitempty" json:"search_rank,omitempty"`
	SearchScore    float64 `bson:"search_score,omitempty" json:"search_score,omitempty"`
}

// IngestedRecord is one persisted unit of ingested content, owned by the
// content repository. For a given (datasource, url_hash) at most one
// non-discovered record exists per calendar day.
type IngestedRecord struct {
	ID           string      `bson:"_id,omitempty" json:"id"`
	DataSourceID int64       `bson:"datasource_id" json:"datasource_id"`
	UserID       int64       `bson:"user_id,omitempty" json:"user_id,omitempty"`
	SourceType   string      `bson:"source_type" json:"source_type"`
	URL          string      `bson:"url,omitempty" json:"url,omitempty"`
	URLHash      string      `bson:"url_hash" json:"url_hash"`
	Title        string      `bson:"title" json:"title"`
	Content      string      `bson:"content" json:"content"`
	Extra        RecordExtra `bson:"extra" json:"extra"`
	FetchedAt    time.Time   `bson:"fetched_at" json:"fetched_at"`
}

// QueueEntry is one pending URL in an orchestrator run. Discovered entries
// were found on a parent page during this run and are deduped by content
// hash only, never by the one-per-day parent rule.
type QueueEntry struct {
	URL        string
	Discovered bool
}

// HashURL returns the stable digest used for url_hash.
func HashURL(rawURL string) string {
	return HashText(rawURL)
}

// HashText returns a 128-bit hex digest of the given text.
func HashText(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:16])
}
