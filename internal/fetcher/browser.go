package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

// BrowserFetcher renders JS-heavy pages in a headless browser via Rod.
// Pages are created per fetch, so concurrent use is safe.
type BrowserFetcher struct {
	browser     *rod.Browser
	stealthMode bool
	settleDelay time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// NewBrowser launches a headless Chromium and connects to it.
func NewBrowser(src *config.SourceConfig, logger *slog.Logger) (*BrowserFetcher, error) {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	launchURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(launchURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	settle := src.Browser.SettleDelay
	if settle <= 0 {
		settle = 300 * time.Millisecond
	}

	bf := &BrowserFetcher{
		browser:     browser,
		stealthMode: src.Browser.Stealth,
		settleDelay: settle,
		timeout:     src.RequestTimeout,
		logger:      logger.With("component", "browser_fetcher"),
	}
	bf.logger.Info("browser fetcher ready", "stealth", bf.stealthMode)
	return bf, nil
}

// Fetch navigates to the URL, waits for the page to settle, and returns the
// rendered HTML. Waiting degrades gracefully: a page that never reaches
// network-idle is read after the load event instead of failing.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.FetchRequest) (*types.FetchResult, error) {
	timeout := bf.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	page, err := bf.newPage()
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Kind: types.FetchRenderer, Err: err}
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx)

	if len(req.Headers) > 0 {
		headers := make([]string, 0, len(req.Headers)*2)
		for k, vals := range req.Headers {
			for _, v := range vals {
				headers = append(headers, k, v)
			}
		}
		_, _ = page.SetExtraHeaders(headers)
	}

	if err := page.Timeout(timeout).Navigate(req.URL); err != nil {
		return nil, &types.FetchError{URL: req.URL, Kind: types.FetchRenderer, Err: err}
	}

	// Prefer a quiet network; fall back to DOM-ready when the site keeps
	// long-polling connections open.
	if err := page.Timeout(timeout).WaitStable(bf.settleDelay); err != nil {
		bf.logger.Warn("page never settled, falling back to load event", "url", req.URL, "error", err)
		if err := page.Timeout(timeout).WaitLoad(); err != nil {
			return nil, &types.FetchError{URL: req.URL, Kind: types.FetchRenderer, Err: err}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URL, Kind: types.FetchRenderer, Err: err}
	}

	finalURL := req.URL
	if info, err := page.Info(); err == nil && info != nil {
		finalURL = info.URL
	}

	bf.logger.Debug("browser fetch complete", "url", req.URL, "final_url", finalURL, "size", len(html))

	return &types.FetchResult{
		URL:        req.URL,
		HTML:       html,
		StatusCode: 200, // Rod doesn't surface the navigation status code
		FinalURL:   finalURL,
	}, nil
}

// Close shuts down the browser.
func (bf *BrowserFetcher) Close() error {
	if bf.browser != nil {
		return bf.browser.Close()
	}
	return nil
}

// Type returns the engine identifier.
func (bf *BrowserFetcher) Type() string { return config.EngineBrowser }

func (bf *BrowserFetcher) newPage() (*rod.Page, error) {
	if bf.stealthMode {
		return stealth.Page(bf.browser)
	}
	return bf.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
}
