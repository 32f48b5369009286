package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/fetcher"
	"github.com/GuavaAi/auto-media/internal/types"
)

// runSearch is the search-API path: every ranked hit becomes one candidate
// record carrying its query, provider, rank and score.
func (o *Orchestrator) runSearch(ctx context.Context, st *runState, ds *config.DataSource, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	src := &ds.Source

	apiKey := src.Search.APIKey
	if apiKey == "" {
		provider := src.Search.Provider
		key, err := o.keys.Pick(ctx, provider)
		if err != nil {
			return err
		}
		apiKey = key.Key
	}

	client, err := o.newSearch(src.Search, apiKey, logger)
	if err != nil {
		return fmt.Errorf("create search client: %w", err)
	}

	items, err := client.Search(ctx, src.Search)
	if err != nil {
		st.addFetchFailed()
		logger.Warn("search failed", "query", src.Search.Query, "error", err)
		return nil
	}

	for _, item := range items {
		if item.URL == "" {
			continue
		}
		body := item.HTML
		if body == "" {
			body = item.MainText
		}
		if body == "" {
			body = item.Snippet
		}
		res := &types.FetchResult{
			URL:        item.URL,
			HTML:       body,
			StatusCode: 200,
			FinalURL:   item.URL,
		}
		rec := o.buildRecord(ds, item.URL, types.HashURL(item.URL), res, nil, now, false)
		if rec.Title == "" {
			rec.Title = item.Title
		}
		rec.Extra.Query = src.Search.Query
		rec.Extra.SearchProvider = client.Provider()
		rec.Extra.SearchRank = item.Rank
		rec.Extra.SearchScore = item.Score
		o.saveParent(ctx, st, ds, rec, dayStart, dayEnd, force, logger)
	}
	return nil
}

// runAPI pulls one payload from a configured HTTP endpoint and ingests it as
// a single record keyed by the request URL.
func (o *Orchestrator) runAPI(ctx context.Context, st *runState, ds *config.DataSource, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	src := &ds.Source
	spec := src.API

	target := spec.URL
	if len(spec.Params) > 0 {
		u, err := url.Parse(spec.URL)
		if err != nil {
			return &types.ConfigError{Field: "sources." + ds.Name + ".api.url", Err: err}
		}
		q := u.Query()
		for k, v := range spec.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	var bodyReader io.Reader
	if spec.Body != "" {
		bodyReader = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, target, bodyReader)
	if err != nil {
		return &types.ConfigError{Field: "sources." + ds.Name + ".api", Err: err}
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: src.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		st.addFetchFailed()
		logger.Warn("api fetch failed", "url", target, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		st.addFetchFailed()
		logger.Warn("api fetch failed", "url", target, "status", resp.StatusCode)
		return nil
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		st.addFetchFailed()
		logger.Warn("api read failed", "url", target, "error", err)
		return nil
	}

	res := &types.FetchResult{URL: target, HTML: string(payload), StatusCode: resp.StatusCode, FinalURL: target}
	rec := o.buildRecord(ds, target, types.HashURL(target), res, nil, now, false)
	o.saveParent(ctx, st, ds, rec, dayStart, dayEnd, force, logger)
	return nil
}

// runDocument ingests one remote document as a single record.
func (o *Orchestrator) runDocument(ctx context.Context, st *runState, ds *config.DataSource, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	return o.runSingleURL(ctx, st, ds, ds.Source.Document.URL, now, dayStart, dayEnd, force, logger)
}

// runWebhook POSTs to the webhook trigger URL and records the response body
// as a single record.
func (o *Orchestrator) runWebhook(ctx context.Context, st *runState, ds *config.DataSource, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	src := &ds.Source
	target := src.Webhook.URL

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return &types.ConfigError{Field: "sources." + ds.Name + ".webhook.url", Err: err}
	}
	for k, v := range src.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: src.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		st.addFetchFailed()
		logger.Warn("webhook trigger failed", "url", target, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		st.addFetchFailed()
		logger.Warn("webhook trigger failed", "url", target, "status", resp.StatusCode)
		return nil
	}
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		st.addFetchFailed()
		logger.Warn("webhook read failed", "url", target, "error", err)
		return nil
	}

	res := &types.FetchResult{URL: target, HTML: string(payload), StatusCode: resp.StatusCode, FinalURL: target}
	rec := o.buildRecord(ds, target, types.HashURL(target), res, nil, now, false)
	o.saveParent(ctx, st, ds, rec, dayStart, dayEnd, force, logger)
	return nil
}

func (o *Orchestrator) runSingleURL(ctx context.Context, st *runState, ds *config.DataSource, target string, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	src := &ds.Source
	f := fetcher.NewHTTP(src.RequestTimeout, logger)
	defer f.Close()

	res, err := f.Fetch(ctx, &types.FetchRequest{
		URL:     target,
		Headers: headerMap(src.Headers),
		Timeout: src.RequestTimeout,
	})
	if err != nil {
		st.addFetchFailed()
		logger.Warn("fetch failed", "url", target, "error", err)
		return nil
	}

	rec := o.buildRecord(ds, target, types.HashURL(target), res, nil, now, false)
	o.saveParent(ctx, st, ds, rec, dayStart, dayEnd, force, logger)
	return nil
}

// saveParent applies the one-per-day rule and persists a non-discovered
// record, overwriting in place on a forced re-run.
func (o *Orchestrator) saveParent(ctx context.Context, st *runState, ds *config.DataSource, rec *types.IngestedRecord, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) {
	if rec.Content == "" {
		st.addSkip(types.SkipEmpty, rec.URL, nil)
		return
	}

	existing, err := o.contents.ParentForDay(ctx, ds.ID, rec.URLHash, dayStart, dayEnd)
	if err != nil {
		logger.Warn("parent lookup failed", "url", rec.URL, "error", err)
	}
	if existing != nil {
		if !force {
			st.addSkip(types.SkipParentDailyDedup, rec.URL, existing)
			return
		}
		if err := o.contents.Overwrite(ctx, existing.ID, rec); err != nil {
			logger.Warn("overwrite failed", "url", rec.URL, "error", err)
			return
		}
		st.addIngested()
		return
	}

	if _, err := o.contents.Insert(ctx, rec); err != nil {
		logger.Warn("insert failed", "url", rec.URL, "error", err)
		return
	}
	st.addIngested()
}
