package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// SearchItem is one ranked result from a search provider. Rank is the
// 1-based position in the provider's ordering; Score is the provider's
// relevance score when it reports one.
type SearchItem struct {
	URL      string
	Title    string
	HTML     string
	MainText string
	Snippet  string
	Rank     int
	Score    float64
}

// SearchClient queries a search provider for ranked page content.
type SearchClient interface {
	Search(ctx context.Context, spec config.SearchSpec) ([]SearchItem, error)
	Provider() string
}

// Search provider names.
const (
	SearchProviderScrapeAPI = "scrapeapi"
	SearchProviderUnified   = "unified"
)

// NewSearch creates a client for the configured provider. The per-source
// key override wins over the pool-picked key.
func NewSearch(spec config.SearchSpec, apiKey string, logger *slog.Logger) (SearchClient, error) {
	if spec.APIKey != "" {
		apiKey = spec.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, &types.FetchError{Kind: types.FetchAuthMissing, Err: types.ErrKeyPoolEmpty}
	}
	base := strings.TrimRight(spec.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("search: base_url is required")
	}
	client := &http.Client{Timeout: 60 * time.Second}
	log := logger.With("component", "search_client", "provider", spec.Provider)

	switch spec.Provider {
	case SearchProviderScrapeAPI:
		return &scrapeAPISearch{baseURL: base, apiKey: apiKey, client: client, logger: log}, nil
	case SearchProviderUnified, "":
		return &unifiedSearch{baseURL: base, apiKey: apiKey, client: client, logger: log}, nil
	default:
		return nil, fmt.Errorf("search: unknown provider %q", spec.Provider)
	}
}

// scrapeAPISearch uses the scrape service's search endpoint, which returns
// scraped HTML per hit alongside the ranking.
type scrapeAPISearch struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func (s *scrapeAPISearch) Provider() string { return SearchProviderScrapeAPI }

func (s *scrapeAPISearch) Search(ctx context.Context, spec config.SearchSpec) ([]SearchItem, error) {
	if strings.TrimSpace(spec.Query) == "" {
		return nil, types.ErrNoQuery
	}
	body := map[string]any{
		"query":   spec.Query,
		"limit":   spec.Limit,
		"sources": spec.Sources,
		"scrapeOptions": map[string]any{
			"formats": []string{"rawHtml"},
		},
	}
	if spec.TimeRange != "" {
		body["tbs"] = spec.TimeRange
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			Web []struct {
				URL     string `json:"url"`
				Title   string `json:"title"`
				RawHTML string `json:"rawHtml"`
				HTML    string `json:"html"`
			} `json:"web"`
		} `json:"data"`
	}
	if err := postJSON(ctx, s.client, s.baseURL+"/v1/search", s.apiKey, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("search api: %s", resp.Error)
	}

	items := make([]SearchItem, 0, len(resp.Data.Web))
	for i, hit := range resp.Data.Web {
		html := hit.RawHTML
		if html == "" {
			html = hit.HTML
		}
		items = append(items, SearchItem{
			URL:   hit.URL,
			Title: hit.Title,
			HTML:  html,
			Rank:  i + 1,
		})
	}
	s.logger.Info("search complete", "query", spec.Query, "hits", len(items))
	return items, nil
}

// unifiedSearch talks to a generic JSON search gateway that returns extracted
// main text and a rerank score per hit instead of raw HTML.
type unifiedSearch struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

func (s *unifiedSearch) Provider() string { return SearchProviderUnified }

func (s *unifiedSearch) Search(ctx context.Context, spec config.SearchSpec) ([]SearchItem, error) {
	if strings.TrimSpace(spec.Query) == "" {
		return nil, types.ErrNoQuery
	}
	body := map[string]any{
		"query":      spec.Query,
		"limit":      spec.Limit,
		"sources":    spec.Sources,
		"time_range": spec.TimeRange,
	}

	var resp struct {
		Results []struct {
			URL      string  `json:"url"`
			Title    string  `json:"title"`
			MainText string  `json:"main_text"`
			Snippet  string  `json:"snippet"`
			Score    float64 `json:"score"`
		} `json:"results"`
		Error string `json:"error"`
	}
	if err := postJSON(ctx, s.client, s.baseURL+"/search", s.apiKey, body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("search api: %s", resp.Error)
	}

	items := make([]SearchItem, 0, len(resp.Results))
	for i, hit := range resp.Results {
		items = append(items, SearchItem{
			URL:      hit.URL,
			Title:    hit.Title,
			MainText: hit.MainText,
			Snippet:  hit.Snippet,
			Rank:     i + 1,
			Score:    hit.Score,
		})
	}
	s.logger.Info("search complete", "query", spec.Query, "hits", len(items))
	return items, nil
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search HTTP %d: %s", resp.StatusCode, string(sample))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
