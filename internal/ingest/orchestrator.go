// Package ingest orchestrates one end-to-end ingestion run per data source:
// fetch seed pages, extract and clean their text, persist deduplicated
// records, then discover and fetch sub-pages under a shared budget.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/GuavaAi/auto-media/internal/clean"
	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/extract"
	"github.com/GuavaAi/auto-media/internal/fetcher"
	"github.com/GuavaAi/auto-media/internal/store"
	"github.com/GuavaAi/auto-media/internal/types"
)

// SearchFactory builds a search client for a resolved credential.
type SearchFactory func(spec config.SearchSpec, apiKey string, logger *slog.Logger) (fetcher.SearchClient, error)

// Options wires an Orchestrator. Fetchers, Search and Now default to the
// production implementations when nil.
type Options struct {
	Contents store.ContentRepository
	Keys     store.KeyPool
	Reports  store.ReportStore
	Sources  store.SourceStore
	Logger   *slog.Logger

	Fetchers fetcher.Factory
	Search   SearchFactory
	Now      func() time.Time
}

// Orchestrator runs ingestion for configured data sources.
type Orchestrator struct {
	contents   store.ContentRepository
	keys       store.KeyPool
	reports    store.ReportStore
	sources    store.SourceStore
	newFetcher fetcher.Factory
	newSearch  SearchFactory
	logger     *slog.Logger
	now        func() time.Time
}

// New creates an Orchestrator from Options.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		contents:   opts.Contents,
		keys:       opts.Keys,
		reports:    opts.Reports,
		sources:    opts.Sources,
		newFetcher: opts.Fetchers,
		newSearch:  opts.Search,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if o.newFetcher == nil {
		o.newFetcher = fetcher.New
	}
	if o.newSearch == nil {
		o.newSearch = func(spec config.SearchSpec, apiKey string, logger *slog.Logger) (fetcher.SearchClient, error) {
			return fetcher.NewSearch(spec, apiKey, logger)
		}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// runState accumulates per-run counters. Safe for concurrent use by the
// sub-page workers.
type runState struct {
	mu       sync.Mutex
	ingested int
	stats    types.RunStats
	details  []types.SkipDetail
}

func (s *runState) addIngested() {
	s.mu.Lock()
	s.ingested++
	s.mu.Unlock()
}

func (s *runState) addFetchFailed() {
	s.mu.Lock()
	s.stats.FetchFailed++
	s.mu.Unlock()
}

func (s *runState) addSkip(reason, rawURL string, matched *types.IngestedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch reason {
	case types.SkipEmpty:
		s.stats.EmptySkipped++
	default:
		s.stats.DedupSkipped++
	}
	if len(s.details) >= types.MaxSkipDetails {
		return
	}
	d := types.SkipDetail{URL: rawURL, Reason: reason}
	if matched != nil {
		d.MatchedRecordID = matched.ID
		d.MatchedFetchedAt = matched.FetchedAt
	}
	s.details = append(s.details, d)
}

// Run executes one ingestion run for the data source. force overwrites the
// day's existing parent records in place instead of skipping them. The
// returned report is also persisted; a run that produced no records while at
// least one fetch failed additionally returns a RunFailedError.
func (o *Orchestrator) Run(ctx context.Context, ds *config.DataSource, force bool) (*types.RunReport, error) {
	ds.Source.Normalize()
	if err := ds.Validate(); err != nil {
		return nil, &types.ConfigError{Field: "sources." + ds.Name, Err: err}
	}

	now := o.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	logger := o.logger.With("source", ds.Name, "source_id", ds.ID)
	logger.Info("run started", "type", ds.SourceType, "force", force)

	st := &runState{}
	var runErr error
	switch ds.SourceType {
	case types.SourceAPI:
		if ds.Source.Search.Provider != "" {
			runErr = o.runSearch(ctx, st, ds, now, dayStart, dayEnd, force, logger)
		} else {
			runErr = o.runAPI(ctx, st, ds, now, dayStart, dayEnd, force, logger)
		}
	case types.SourceDocument:
		runErr = o.runDocument(ctx, st, ds, now, dayStart, dayEnd, force, logger)
	case types.SourceWebhook:
		runErr = o.runWebhook(ctx, st, ds, now, dayStart, dayEnd, force, logger)
	default:
		runErr = o.runURL(ctx, st, ds, now, dayStart, dayEnd, force, logger)
	}
	if runErr != nil {
		return nil, runErr
	}

	report := &types.RunReport{
		DataSourceID:   ds.ID,
		TriggeredAt:    now,
		Force:          force,
		Ingested:       st.ingested,
		Stats:          st.stats,
		SkippedDetails: st.details,
	}
	if err := o.reports.Append(ctx, report); err != nil {
		logger.Warn("report append failed", "error", err)
	}
	o.stampRunTimes(ctx, ds, now, logger)

	logger.Info("run finished",
		"ingested", st.ingested,
		"dedup_skipped", st.stats.DedupSkipped,
		"empty_skipped", st.stats.EmptySkipped,
		"fetch_failed", st.stats.FetchFailed,
	)

	if st.ingested == 0 && st.stats.FetchFailed > 0 {
		return report, &types.RunFailedError{Stats: st.stats}
	}
	return report, nil
}

// runURL is the crawl path: seed pages first, then discovered sub-pages.
func (o *Orchestrator) runURL(ctx context.Context, st *runState, ds *config.DataSource, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	src := &ds.Source
	seeds := expandSeeds(src)
	if len(seeds) == 0 {
		return &types.ConfigError{Field: "sources." + ds.Name + ".urls", Err: types.ErrNoSeedURLs}
	}

	engine := fetcher.Resolve(src.Engine, src.UseBrowser)
	if engine == config.EngineSearch {
		return &types.ConfigError{
			Field: "sources." + ds.Name + ".engine",
			Err:   fmt.Errorf("search engine requires the api source type"),
		}
	}

	apiKey, err := o.resolveKey(ctx, engine, src)
	if err != nil {
		return err
	}
	f, err := o.newFetcher(engine, src, apiKey, logger)
	if err != nil {
		return fmt.Errorf("create %s fetcher: %w", engine, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("fetcher close failed", "error", err)
		}
	}()

	if engine == config.EngineScrapeAPI && src.ScrapeAPI.Batch {
		return o.runBatch(ctx, st, ds, f, seeds, now, dayStart, dayEnd, force, logger)
	}

	budget := src.MaxSubLinks
	var queue []types.QueueEntry

	for _, seed := range seeds {
		raw, fetched := o.processParent(ctx, st, ds, f, seed, now, dayStart, dayEnd, force, logger)
		if !fetched || !src.AutoDiscover() || budget <= 0 {
			continue
		}
		links := DiscoverLinks(raw, seed, src.SubScope(), budget)
		budget -= len(links)
		for _, link := range links {
			queue = append(queue, types.QueueEntry{URL: link, Discovered: true})
		}
	}

	if len(queue) > 0 {
		logger.Info("fetching discovered sub-pages", "count", len(queue), "workers", src.SubConcurrency)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(src.SubConcurrency)
		for _, entry := range queue {
			entry := entry
			g.Go(func() error {
				o.processDiscovered(gctx, st, ds, f, entry.URL, now, logger)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// processParent handles one seed URL. It returns the raw HTML and whether a
// fetch actually happened, so the caller can run discovery. A seed skipped by
// the daily dedup rule, or by a forced overwrite when rediscovery is off,
// reports fetched HTML but suppresses discovery via the empty return.
func (o *Orchestrator) processParent(ctx context.Context, st *runState, ds *config.DataSource, f fetcher.Fetcher, seed string, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) (raw string, fetched bool) {
	src := &ds.Source
	urlHash := types.HashURL(seed)

	existing, err := o.contents.ParentForDay(ctx, ds.ID, urlHash, dayStart, dayEnd)
	if err != nil {
		logger.Warn("parent lookup failed", "url", seed, "error", err)
	}
	if existing != nil && !force {
		st.addSkip(types.SkipParentDailyDedup, seed, existing)
		logger.Debug("seed skipped by daily dedup", "url", seed, "record_id", existing.ID)
		return "", false
	}

	res, err := f.Fetch(ctx, &types.FetchRequest{
		URL:     seed,
		Headers: headerMap(src.Headers),
		Timeout: src.RequestTimeout,
	})
	if err != nil {
		st.addFetchFailed()
		logger.Warn("seed fetch failed", "url", seed, "error", err)
		return "", false
	}

	rec := o.buildRecord(ds, seed, urlHash, res, &src.Parser, now, false)
	if rec.Content == "" {
		st.addSkip(types.SkipEmpty, seed, nil)
		// A listing page with an empty selector match still feeds discovery.
		return res.HTML, true
	}

	if existing != nil {
		// Forced re-run: replace the day's record in place. Discovery would
		// re-fetch every sub-page, so it only runs when explicitly enabled.
		if err := o.contents.Overwrite(ctx, existing.ID, rec); err != nil {
			logger.Warn("overwrite failed", "url", seed, "error", err)
			return res.HTML, true
		}
		st.addIngested()
		if !src.RediscoverOnForce {
			return "", false
		}
		return res.HTML, true
	}

	if _, err := o.contents.Insert(ctx, rec); err != nil {
		logger.Warn("insert failed", "url", seed, "error", err)
		return res.HTML, true
	}
	st.addIngested()
	return res.HTML, true
}

// processDiscovered handles one discovered sub-page. Discovered records skip
// the daily rule and dedup purely by content hash against the latest record
// for the same URL.
func (o *Orchestrator) processDiscovered(ctx context.Context, st *runState, ds *config.DataSource, f fetcher.Fetcher, link string, now time.Time, logger *slog.Logger) {
	src := &ds.Source
	urlHash := types.HashURL(link)

	res, err := f.Fetch(ctx, &types.FetchRequest{
		URL:     link,
		Headers: headerMap(src.Headers),
		Timeout: src.RequestTimeout,
	})
	if err != nil {
		st.addFetchFailed()
		logger.Warn("sub-page fetch failed", "url", link, "error", err)
		return
	}

	rec := o.buildRecord(ds, link, urlHash, res, src.SubScope(), now, true)
	if rec.Content == "" {
		st.addSkip(types.SkipEmpty, link, nil)
		return
	}

	latest, err := o.contents.LatestByURLHash(ctx, ds.ID, urlHash)
	if err != nil {
		logger.Warn("latest lookup failed", "url", link, "error", err)
	}
	if latest != nil {
		if latest.Extra.ContentHashClean != "" && latest.Extra.ContentHashClean == rec.Extra.ContentHashClean {
			st.addSkip(types.SkipDedupHashClean, link, latest)
			return
		}
		if latest.Extra.ContentHash != "" && latest.Extra.ContentHash == rec.Extra.ContentHash {
			st.addSkip(types.SkipDedupHashRaw, link, latest)
			return
		}
	}

	if _, err := o.contents.Insert(ctx, rec); err != nil {
		logger.Warn("sub-page insert failed", "url", link, "error", err)
		return
	}
	st.addIngested()
}

// runBatch is the scrape-API batch path: every remaining seed goes out in one
// job and dynamic discovery stays off.
func (o *Orchestrator) runBatch(ctx context.Context, st *runState, ds *config.DataSource, f fetcher.Fetcher, seeds []string, now, dayStart, dayEnd time.Time, force bool, logger *slog.Logger) error {
	batcher, ok := f.(interface {
		FetchBatch(ctx context.Context, urls []string) ([]*types.FetchResult, error)
	})
	if !ok {
		return fmt.Errorf("engine %s does not support batch mode", f.Type())
	}

	src := &ds.Source
	existing := make(map[string]*types.IngestedRecord, len(seeds))
	var pending []string
	for _, seed := range seeds {
		rec, err := o.contents.ParentForDay(ctx, ds.ID, types.HashURL(seed), dayStart, dayEnd)
		if err != nil {
			logger.Warn("parent lookup failed", "url", seed, "error", err)
		}
		if rec != nil && !force {
			st.addSkip(types.SkipParentDailyDedup, seed, rec)
			continue
		}
		if rec != nil {
			existing[seed] = rec
		}
		pending = append(pending, seed)
	}
	if len(pending) == 0 {
		return nil
	}

	results, err := batcher.FetchBatch(ctx, pending)
	if err != nil {
		st.mu.Lock()
		st.stats.FetchFailed += len(pending)
		st.mu.Unlock()
		logger.Warn("batch fetch failed", "urls", len(pending), "error", err)
		return nil
	}

	returned := make(map[string]bool, len(results))
	for _, res := range results {
		returned[res.URL] = true
		rec := o.buildRecord(ds, res.URL, types.HashURL(res.URL), res, &src.Parser, now, false)
		if rec.Content == "" {
			st.addSkip(types.SkipEmpty, res.URL, nil)
			continue
		}
		if prev := existing[res.URL]; prev != nil {
			if err := o.contents.Overwrite(ctx, prev.ID, rec); err != nil {
				logger.Warn("overwrite failed", "url", res.URL, "error", err)
				continue
			}
			st.addIngested()
			continue
		}
		if _, err := o.contents.Insert(ctx, rec); err != nil {
			logger.Warn("insert failed", "url", res.URL, "error", err)
			continue
		}
		st.addIngested()
	}
	for _, seed := range pending {
		if !returned[seed] {
			st.addFetchFailed()
			logger.Warn("batch result missing", "url", seed)
		}
	}
	return nil
}

// buildRecord extracts, cleans and assembles one persistable record from a
// fetch result. Content is empty when extraction filtered the page out or
// cleaning left nothing.
func (o *Orchestrator) buildRecord(ds *config.DataSource, rawURL, urlHash string, res *types.FetchResult, scope *config.ParserSpec, now time.Time, discovered bool) *types.IngestedRecord {
	src := &ds.Source
	extracted := extract.Apply(res.HTML, rawURL, scope, src.Extractor)
	cleaned := clean.Clean(extracted.MainText, src.Cleaner)

	title := extracted.Title
	if title == "" {
		if t, ok := res.Meta["title"].(string); ok {
			title = t
		}
	}

	sourceType := ds.SourceType
	if sourceType == "" {
		sourceType = types.SourceURL
	}

	return &types.IngestedRecord{
		DataSourceID: ds.ID,
		UserID:       ds.UserID,
		SourceType:   sourceType,
		URL:          rawURL,
		URLHash:      urlHash,
		Title:        title,
		Content:      cleaned.CleanText,
		Extra: types.RecordExtra{
			StatusCode:       res.StatusCode,
			FinalURL:         res.FinalURL,
			IsDiscovered:     discovered,
			Extractor:        extracted.Extractor,
			ExtractorMeta:    extracted.Meta,
			ContentHash:      types.HashText(extracted.MainText),
			ContentHashClean: cleaned.ContentHashClean,
			CleanStats:       cleaned.Stats,
			QualityFlags:     cleaned.QualityFlags,
		},
		FetchedAt: now,
	}
}

// resolveKey picks a pooled credential when the engine needs one and the
// source does not carry its own.
func (o *Orchestrator) resolveKey(ctx context.Context, engine string, src *config.SourceConfig) (string, error) {
	if engine != config.EngineScrapeAPI || src.ScrapeAPI.APIKey != "" {
		return "", nil
	}
	provider := src.ScrapeAPI.Provider
	if provider == "" {
		provider = config.EngineScrapeAPI
	}
	key, err := o.keys.Pick(ctx, provider)
	if err != nil {
		return "", err
	}
	return key.Key, nil
}

// stampRunTimes records the run and, for scheduled sources, the next
// cron-computed run time.
func (o *Orchestrator) stampRunTimes(ctx context.Context, ds *config.DataSource, now time.Time, logger *slog.Logger) {
	var next time.Time
	if ds.EnableSchedule && ds.ScheduleCron != "" {
		sched, err := cron.ParseStandard(ds.ScheduleCron)
		if err != nil {
			logger.Warn("invalid schedule cron", "cron", ds.ScheduleCron, "error", err)
		} else {
			next = sched.Next(now)
		}
	}
	if err := o.sources.UpdateRunTimes(ctx, ds.ID, now, next); err != nil {
		logger.Warn("run-time update failed", "error", err)
	}
}

// expandSeeds merges the explicit URL list with the pagination expansion,
// dropping duplicates while keeping first-occurrence order.
func expandSeeds(src *config.SourceConfig) []string {
	var raw []string
	raw = append(raw, src.URLs...)
	if p := src.Pagination; p != nil && p.BaseURL != "" && p.PageParam != "" && p.End >= p.Start {
		for page := p.Start; page <= p.End; page++ {
			u, err := url.Parse(p.BaseURL)
			if err != nil {
				break
			}
			q := u.Query()
			q.Set(p.PageParam, strconv.Itoa(page))
			u.RawQuery = q.Encode()
			raw = append(raw, u.String())
		}
	}

	seen := make(map[string]bool, len(raw))
	seeds := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		seeds = append(seeds, s)
	}
	return seeds
}

func headerMap(h map[string]string) http.Header {
	if len(h) == 0 {
		return nil
	}
	out := make(http.Header, len(h))
	for k, v := range h {
		out.Set(k, v)
	}
	return out
}
