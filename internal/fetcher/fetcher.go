// Package fetcher provides the pluggable crawl engines: plain HTTP,
// headless-browser rendering, and a remote scrape API. Engine selection is a
// pure function of configuration; engines share no mutable state.
package fetcher

import (
	"context"
	"log/slog"
	"strings"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// Fetcher is the interface for all engine implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.FetchRequest) (*types.FetchResult, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the engine identifier.
	Type() string
}

// Resolve maps a source configuration to an engine name.
// Fallback order: explicit engine name, then the legacy use_browser flag,
// then the default engine (http). Unknown names fall through the same chain.
func Resolve(engine string, useBrowser bool) string {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case config.EngineHTTP:
		return config.EngineHTTP
	case config.EngineBrowser:
		return config.EngineBrowser
	case config.EngineScrapeAPI:
		return config.EngineScrapeAPI
	case config.EngineSearch:
		return config.EngineSearch
	}
	if useBrowser {
		return config.EngineBrowser
	}
	return config.EngineHTTP
}

// Factory builds a fetcher for a resolved engine name. apiKey carries the
// credential for engines that need one (empty when the engine does not).
type Factory func(engine string, src *config.SourceConfig, apiKey string, logger *slog.Logger) (Fetcher, error)

// New is the default Factory.
func New(engine string, src *config.SourceConfig, apiKey string, logger *slog.Logger) (Fetcher, error) {
	switch engine {
	case config.EngineBrowser:
		return NewBrowser(src, logger)
	case config.EngineScrapeAPI:
		return NewScrapeAPI(src.ScrapeAPI, apiKey, logger)
	default:
		return NewHTTP(src.RequestTimeout, logger), nil
	}
}
