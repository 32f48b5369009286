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

// ScrapeAPIFetcher delegates fetching to a remote scrape service. It covers
// the single-URL synchronous endpoint and the asynchronous batch endpoint;
// batch jobs are polled until they complete or the configured deadline ends.
type ScrapeAPIFetcher struct {
	spec   config.ScrapeAPISpec
	apiKey string
	client *http.Client
	logger *slog.Logger
}

// NewScrapeAPI creates the remote scrape engine. The key is required: the
// per-source override wins, otherwise the caller passes one picked from the
// credential pool.
func NewScrapeAPI(spec config.ScrapeAPISpec, apiKey string, logger *slog.Logger) (*ScrapeAPIFetcher, error) {
	if spec.APIKey != "" {
		apiKey = spec.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, &types.FetchError{Kind: types.FetchAuthMissing, Err: types.ErrKeyPoolEmpty}
	}
	base := strings.TrimRight(spec.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("scrapeapi: base_url is required")
	}
	spec.BaseURL = base
	return &ScrapeAPIFetcher{
		spec:   spec,
		apiKey: apiKey,
		client: &http.Client{Timeout: spec.Deadline},
		logger: logger.With("component", "scrapeapi_fetcher"),
	}, nil
}

// scrapeRequest is the request body of the single and batch scrape endpoints.
type scrapeRequest struct {
	URL             string   `json:"url,omitempty"`
	URLs            []string `json:"urls,omitempty"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	WaitFor         int      `json:"waitFor,omitempty"`
}

type scrapeDocument struct {
	HTML     string `json:"html"`
	RawHTML  string `json:"rawHtml"`
	Metadata struct {
		Title      string `json:"title"`
		SourceURL  string `json:"sourceURL"`
		StatusCode int    `json:"statusCode"`
	} `json:"metadata"`
}

type scrapeResponse struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Data    scrapeDocument `json:"data"`
}

type batchSubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type batchStatusResponse struct {
	Status string           `json:"status"` // scraping | completed | failed
	Error  string           `json:"error"`
	Data   []scrapeDocument `json:"data"`
}

// Fetch scrapes a single URL through the synchronous endpoint.
func (f *ScrapeAPIFetcher) Fetch(ctx context.Context, req *types.FetchRequest) (*types.FetchResult, error) {
	body := scrapeRequest{
		URL:             req.URL,
		Formats:         []string{"rawHtml"},
		OnlyMainContent: f.spec.OnlyMainContent,
		WaitFor:         f.spec.WaitMillis,
	}

	var resp scrapeResponse
	if err := f.post(ctx, "/v1/scrape", body, &resp); err != nil {
		return nil, &types.FetchError{URL: req.URL, Kind: types.FetchHTTPError, Err: err}
	}
	if !resp.Success {
		return nil, &types.FetchError{
			URL:  req.URL,
			Kind: types.FetchHTTPError,
			Err:  fmt.Errorf("scrape api: %s", resp.Error),
		}
	}
	return documentToResult(req.URL, resp.Data), nil
}

// FetchBatch submits all URLs as one asynchronous job and polls until the job
// completes. A job still running at the deadline fails with ErrBatchTimeout.
func (f *ScrapeAPIFetcher) FetchBatch(ctx context.Context, urls []string) ([]*types.FetchResult, error) {
	body := scrapeRequest{
		URLs:            urls,
		Formats:         []string{"rawHtml"},
		OnlyMainContent: f.spec.OnlyMainContent,
		WaitFor:         f.spec.WaitMillis,
	}

	var submit batchSubmitResponse
	if err := f.post(ctx, "/v1/batch/scrape", body, &submit); err != nil {
		return nil, err
	}
	if !submit.Success || submit.ID == "" {
		return nil, fmt.Errorf("scrape api batch submit: %s", submit.Error)
	}

	f.logger.Info("batch job submitted", "job_id", submit.ID, "urls", len(urls))

	deadline := time.NewTimer(f.spec.Deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(f.spec.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("batch job %s: %w", submit.ID, types.ErrBatchTimeout)
		case <-ticker.C:
		}

		var status batchStatusResponse
		if err := f.get(ctx, "/v1/batch/scrape/"+submit.ID, &status); err != nil {
			f.logger.Warn("batch poll failed", "job_id", submit.ID, "error", err)
			continue
		}
		switch status.Status {
		case "completed":
			results := make([]*types.FetchResult, 0, len(status.Data))
			for _, doc := range status.Data {
				results = append(results, documentToResult(doc.Metadata.SourceURL, doc))
			}
			return results, nil
		case "failed":
			return nil, fmt.Errorf("batch job %s failed: %s", submit.ID, status.Error)
		}
	}
}

// Close releases idle connections.
func (f *ScrapeAPIFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the engine identifier.
func (f *ScrapeAPIFetcher) Type() string { return config.EngineScrapeAPI }

func documentToResult(url string, doc scrapeDocument) *types.FetchResult {
	html := doc.RawHTML
	if html == "" {
		html = doc.HTML
	}
	status := doc.Metadata.StatusCode
	if status == 0 {
		status = 200
	}
	finalURL := doc.Metadata.SourceURL
	if finalURL == "" {
		finalURL = url
	}
	return &types.FetchResult{
		URL:        url,
		HTML:       html,
		StatusCode: status,
		FinalURL:   finalURL,
		Meta:       map[string]any{"title": doc.Metadata.Title},
	}
}

func (f *ScrapeAPIFetcher) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.spec.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, out)
}

func (f *ScrapeAPIFetcher) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.spec.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return f.do(req, out)
}

func (f *ScrapeAPIFetcher) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+f.apiKey)
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		sample, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scrape api HTTP %d: %s", resp.StatusCode, string(sample))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
