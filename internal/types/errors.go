package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrNoSeedURLs   = errors.New("no seed URLs configured")
	ErrNoQuery      = errors.New("no search query configured")
	ErrKeyPoolEmpty = errors.New("no active credential in pool")
	ErrBatchTimeout = errors.New("batch scrape job timed out")
	ErrEmptyResult  = errors.New("empty fetch result")
)

// Fetch error kinds.
const (
	FetchTimeout     = "timeout"
	FetchHTTPError   = "http_error"
	FetchRenderer    = "renderer_error"
	FetchAuthMissing = "auth_missing"
)

// FetchError wraps a per-URL fetch failure. These are recoverable: the
// orchestrator counts them and moves on.
type FetchError struct {
	URL        string
	Kind       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s failed (%s, status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s failed (%s): %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConfigError marks an invalid or incomplete data source configuration.
// It is fatal and aborts the run before any fetch.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// RunFailedError signals that a run produced zero records while at least one
// non-dedup failure occurred. A run skipped purely by dedup is a successful
// no-op, not a RunFailedError.
type RunFailedError struct {
	Stats RunStats
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run produced no records (%d fetch failures, %d empty, %d dedup skips)",
		e.Stats.FetchFailed, e.Stats.EmptySkipped, e.Stats.DedupSkipped)
}

// NoDayDataError signals that clustering was requested for a day with no
// usable ingested records. Distinct from a day that yields zero clusters.
type NoDayDataError struct {
	Day string
}

func (e *NoDayDataError) Error() string {
	return fmt.Sprintf("no ingested content for day %s: run ingestion first or pick a day with data", e.Day)
}
