package config

import (
	"fmt"
	"strings"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Engine names accepted by the fetcher layer.
const (
	EngineHTTP      = "http"
	EngineBrowser   = "browser"
	EngineScrapeAPI = "scrapeapi"
	EngineSearch    = "search"
)

// MaxSubConcurrency is the hard cap on the discovered-page worker pool,
// regardless of configured value.
const MaxSubConcurrency = 32

// Config is the application-level configuration.
type Config struct {
	Mongo   MongoConfig   `mapstructure:"mongo"   yaml:"mongo"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Sources []DataSource  `mapstructure:"sources" yaml:"sources"`
	Hotspot HotspotConfig `mapstructure:"hotspot" yaml:"hotspot"`
}

// MongoConfig controls the persistence backend.
type MongoConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// HotspotConfig controls the clustering engine.
type HotspotConfig struct {
	// Limit is the number of top clusters kept per day, clamped to [1, 200].
	Limit int `mapstructure:"limit" yaml:"limit"`

	// SimThreshold is the Jaccard similarity needed to join a cluster.
	SimThreshold float64 `mapstructure:"sim_threshold" yaml:"sim_threshold"`
}

// DataSource describes one configured ingestion source.
type DataSource struct {
	ID             int64        `mapstructure:"id"              yaml:"id"`
	UserID         int64        `mapstructure:"user_id"         yaml:"user_id"`
	Name           string       `mapstructure:"name"            yaml:"name"`
	SourceType     string       `mapstructure:"source_type"     yaml:"source_type"`
	ScheduleCron   string       `mapstructure:"schedule_cron"   yaml:"schedule_cron"`
	EnableSchedule bool         `mapstructure:"enable_schedule" yaml:"enable_schedule"`
	Source         SourceConfig `mapstructure:"config"          yaml:"config"`
}

// SourceConfig is the per-source crawl configuration. All fields are
// defaulted and validated once at the orchestrator boundary; helpers
// downstream receive the resolved struct and never re-parse it.
type SourceConfig struct {
	URLs       []string          `mapstructure:"urls"       yaml:"urls"`
	Pagination *PaginationSpec   `mapstructure:"pagination" yaml:"pagination"`
	Headers    map[string]string `mapstructure:"headers"    yaml:"headers"`

	// Engine selects the fetcher: http, browser, scrapeapi or search.
	// UseBrowser is the legacy flag implying the browser engine when
	// Engine is unset.
	Engine     string `mapstructure:"engine"      yaml:"engine"`
	UseBrowser bool   `mapstructure:"use_browser" yaml:"use_browser"`

	AutoDiscoverSub *bool `mapstructure:"auto_discover_sub" yaml:"auto_discover_sub"`
	MaxSubLinks     int   `mapstructure:"max_sub_links"     yaml:"max_sub_links"`
	SubConcurrency  int   `mapstructure:"sub_concurrency"   yaml:"sub_concurrency"`

	// RediscoverOnForce re-runs sub-page discovery when a forced run
	// overwrites an existing same-day parent record. Off by default: a
	// manual re-trigger should not fan out into sub-page fetches.
	RediscoverOnForce bool `mapstructure:"rediscover_on_force" yaml:"rediscover_on_force"`

	Parser    ParserSpec    `mapstructure:"parser"     yaml:"parser"`
	SubParser *ParserSpec   `mapstructure:"sub_parser" yaml:"sub_parser"`
	Extractor ExtractorSpec `mapstructure:"extractor"  yaml:"extractor"`
	Cleaner   CleanerSpec   `mapstructure:"cleaner"    yaml:"cleaner"`

	Browser   BrowserSpec   `mapstructure:"browser"   yaml:"browser"`
	ScrapeAPI ScrapeAPISpec `mapstructure:"scrapeapi" yaml:"scrapeapi"`
	Search    SearchSpec    `mapstructure:"search"    yaml:"search"`
	API       APISpec       `mapstructure:"api"       yaml:"api"`
	Document  DocumentSpec  `mapstructure:"document"  yaml:"document"`
	Webhook   WebhookSpec   `mapstructure:"webhook"   yaml:"webhook"`

	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// PaginationSpec expands a base URL into synthetic page URLs.
type PaginationSpec struct {
	BaseURL   string `mapstructure:"base_url"   yaml:"base_url"`
	PageParam string `mapstructure:"page_param" yaml:"page_param"`
	Start     int    `mapstructure:"start"      yaml:"start"`
	End       int    `mapstructure:"end"        yaml:"end"`
}

// ParserSpec scopes extraction to a page region and filters by keywords.
// CSSSelector and XPath are alternatives; CSSSelector wins when both are set.
type ParserSpec struct {
	CSSSelector     string   `mapstructure:"css_selector"     yaml:"css_selector"`
	XPath           string   `mapstructure:"xpath"            yaml:"xpath"`
	IncludeKeywords []string `mapstructure:"include_keywords" yaml:"include_keywords"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords" yaml:"exclude_keywords"`
}

// HasSelector reports whether any selector override is configured.
func (p ParserSpec) HasSelector() bool {
	return strings.TrimSpace(p.CSSSelector) != "" || strings.TrimSpace(p.XPath) != ""
}

// ExtractorSpec controls main-text extraction.
type ExtractorSpec struct {
	// UseReadability enables the readability heuristic (default true).
	UseReadability *bool `mapstructure:"use_readability" yaml:"use_readability"`
}

// ReadabilityEnabled resolves the default.
func (e ExtractorSpec) ReadabilityEnabled() bool {
	return e.UseReadability == nil || *e.UseReadability
}

// CleanerSpec controls text cleaning.
type CleanerSpec struct {
	NoiseKeywords []string `mapstructure:"noise_keywords" yaml:"noise_keywords"`
	MinLineLen    int      `mapstructure:"min_line_len"   yaml:"min_line_len"`
	MinTextLen    int      `mapstructure:"min_text_len"   yaml:"min_text_len"`
}

// BrowserSpec configures the headless-render engine.
type BrowserSpec struct {
	// Stealth applies anti-automation-detection patches to each page.
	Stealth bool `mapstructure:"stealth" yaml:"stealth"`

	// SettleDelay is how long a page must stay stable before its HTML is
	// read. Zero means the engine default.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// ScrapeAPISpec configures the remote scrape-API engine.
type ScrapeAPISpec struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string `mapstructure:"api_key"  yaml:"api_key"`

	// Provider names the credential-pool bucket used when APIKey is empty.
	Provider string `mapstructure:"provider" yaml:"provider"`

	// Batch submits all seed URLs in one call; dynamic discovery is
	// disabled unconditionally in this mode.
	Batch bool `mapstructure:"batch" yaml:"batch"`

	// PollInterval and Deadline bound async job polling.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Deadline     time.Duration `mapstructure:"deadline"      yaml:"deadline"`

	OnlyMainContent bool `mapstructure:"only_main_content" yaml:"only_main_content"`
	WaitMillis      int  `mapstructure:"wait_ms"           yaml:"wait_ms"`
}

// SearchSpec configures the search-API mode.
type SearchSpec struct {
	Provider string   `mapstructure:"provider" yaml:"provider"`
	Query    string   `mapstructure:"query"    yaml:"query"`
	Limit    int      `mapstructure:"limit"    yaml:"limit"`
	Sources  []string `mapstructure:"sources"  yaml:"sources"`
	BaseURL  string   `mapstructure:"base_url" yaml:"base_url"`
	APIKey   string   `mapstructure:"api_key"  yaml:"api_key"`
	TimeRange string  `mapstructure:"time_range" yaml:"time_range"`
}

// APISpec configures the raw HTTP API source type.
type APISpec struct {
	URL    string            `mapstructure:"url"    yaml:"url"`
	Method string            `mapstructure:"method" yaml:"method"`
	Body   string            `mapstructure:"body"   yaml:"body"`
	Params map[string]string `mapstructure:"params" yaml:"params"`
}

// DocumentSpec configures the document source type.
type DocumentSpec struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// WebhookSpec configures the webhook trigger source type.
type WebhookSpec struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "automedia",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Hotspot: HotspotConfig{
			Limit:        20,
			SimThreshold: 0.42,
		},
	}
}

// Normalize applies defaults in place. Call once before a run.
func (s *SourceConfig) Normalize() {
	if s.MaxSubLinks <= 0 {
		s.MaxSubLinks = 10
	}
	if s.SubConcurrency <= 0 {
		s.SubConcurrency = 12
	}
	if s.SubConcurrency > MaxSubConcurrency {
		s.SubConcurrency = MaxSubConcurrency
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 30 * time.Second
	}
	if s.Cleaner.MinLineLen <= 0 {
		s.Cleaner.MinLineLen = 6
	}
	if s.Cleaner.MinTextLen <= 0 {
		s.Cleaner.MinTextLen = 120
	}
	if s.ScrapeAPI.PollInterval <= 0 {
		s.ScrapeAPI.PollInterval = time.Second
	}
	if s.ScrapeAPI.Deadline <= 0 {
		s.ScrapeAPI.Deadline = 2 * time.Minute
	}
	if s.Search.Limit <= 0 {
		s.Search.Limit = 10
	}
	if s.Search.Limit > 100 {
		s.Search.Limit = 100
	}
	if len(s.Search.Sources) == 0 {
		s.Search.Sources = []string{"web"}
	}
	if s.API.Method == "" {
		s.API.Method = "GET"
	}
}

// AutoDiscover resolves the default-on discovery toggle.
func (s *SourceConfig) AutoDiscover() bool {
	return s.AutoDiscoverSub == nil || *s.AutoDiscoverSub
}

// SubScope returns the parser spec applied to discovered sub-pages: the
// explicit sub_parser selector when set, else the main selector, else nil.
func (s *SourceConfig) SubScope() *ParserSpec {
	if s.SubParser != nil && s.SubParser.HasSelector() {
		return s.SubParser
	}
	if s.Parser.HasSelector() {
		p := s.Parser
		return &p
	}
	return nil
}

// Validate checks the fields required for the given source type.
func (d *DataSource) Validate() error {
	switch d.SourceType {
	case "url", "":
		if len(d.Source.URLs) == 0 && d.Source.Pagination == nil {
			return fmt.Errorf("source %q: url type requires seed urls or pagination", d.Name)
		}
	case "api":
		if d.Source.Search.Provider == "" && d.Source.API.URL == "" {
			return fmt.Errorf("source %q: api type requires api.url or search.provider", d.Name)
		}
		if d.Source.Search.Provider != "" && strings.TrimSpace(d.Source.Search.Query) == "" {
			return fmt.Errorf("source %q: search mode requires a query", d.Name)
		}
	case "document":
		if d.Source.Document.URL == "" {
			return fmt.Errorf("source %q: document type requires document.url", d.Name)
		}
	case "webhook":
		if d.Source.Webhook.URL == "" {
			return fmt.Errorf("source %q: webhook type requires webhook.url", d.Name)
		}
	default:
		return fmt.Errorf("source %q: unsupported source type %q", d.Name, d.SourceType)
	}
	return nil
}
