package fetcher

import (
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/GuavaAi/auto-media/internal/config"
	"github.com/GuavaAi/auto-media/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

func TestResolve(t *testing.T) {
	tests := []struct {
		engine     string
		useBrowser bool
		want       string
	}{
		{"http", false, config.EngineHTTP},
		{"browser", false, config.EngineBrowser},
		{"scrapeapi", false, config.EngineScrapeAPI},
		{"search", false, config.EngineSearch},
		{"HTTP", true, config.EngineHTTP},          // explicit name beats legacy flag
		{"  Browser ", false, config.EngineBrowser}, // trimmed, case-insensitive
		{"", true, config.EngineBrowser},            // legacy flag
		{"", false, config.EngineHTTP},              // default
		{"bogus", true, config.EngineBrowser},       // unknown falls through to flag
		{"bogus", false, config.EngineHTTP},         // unknown falls through to default
	}
	for _, tt := range tests {
		if got := Resolve(tt.engine, tt.useBrowser); got != tt.want {
			t.Errorf("Resolve(%q, %v) = %q, want %q", tt.engine, tt.useBrowser, got, tt.want)
		}
	}
}

func TestHTTPFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "yes" {
			t.Errorf("custom header not forwarded")
		}
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewHTTP(5*time.Second, testLogger)
	defer f.Close()

	res, err := f.Fetch(context.Background(), &types.FetchRequest{
		URL:     srv.URL,
		Headers: http.Header{"X-Custom": {"yes"}},
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if !strings.Contains(res.HTML, "hello") {
		t.Errorf("HTML = %q", res.HTML)
	}
	if res.FinalURL == "" {
		t.Error("FinalURL not set")
	}
}

func TestHTTPFetchGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("<html><body>compressed body</body></html>"))
		gz.Close()
	}))
	defer srv.Close()

	f := NewHTTP(5*time.Second, testLogger)
	defer f.Close()

	res, err := f.Fetch(context.Background(), &types.FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(res.HTML, "compressed body") {
		t.Errorf("gzip body not decompressed: %q", res.HTML)
	}
}

func TestHTTPFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTP(5*time.Second, testLogger)
	defer f.Close()

	_, err := f.Fetch(context.Background(), &types.FetchRequest{URL: srv.URL})
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if fe.Kind != types.FetchHTTPError {
		t.Errorf("Kind = %q, want %q", fe.Kind, types.FetchHTTPError)
	}
	if fe.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", fe.StatusCode)
	}
}

func TestHTTPFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	f := NewHTTP(5*time.Second, testLogger)
	defer f.Close()

	_, err := f.Fetch(context.Background(), &types.FetchRequest{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	var fe *types.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want FetchError", err)
	}
	if fe.Kind != types.FetchTimeout {
		t.Errorf("Kind = %q, want %q", fe.Kind, types.FetchTimeout)
	}
}

func TestNewScrapeAPIRequiresKey(t *testing.T) {
	_, err := NewScrapeAPI(config.ScrapeAPISpec{BaseURL: "https://api.example.com"}, "", testLogger)
	var fe *types.FetchError
	if !errors.As(err, &fe) || fe.Kind != types.FetchAuthMissing {
		t.Fatalf("error = %v, want auth_missing FetchError", err)
	}
	if !errors.Is(err, types.ErrKeyPoolEmpty) {
		t.Errorf("error does not wrap ErrKeyPoolEmpty: %v", err)
	}
}

func TestScrapeAPIFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/v1/scrape" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":{"rawHtml":"<html><body>remote</body></html>","metadata":{"title":"T","sourceURL":"https://x.test/p","statusCode":200}}}`))
	}))
	defer srv.Close()

	f, err := NewScrapeAPI(config.ScrapeAPISpec{
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		Deadline:     time.Second,
	}, "test-key", testLogger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	res, err := f.Fetch(context.Background(), &types.FetchRequest{URL: "https://x.test/p"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(res.HTML, "remote") {
		t.Errorf("HTML = %q", res.HTML)
	}
	if res.FinalURL != "https://x.test/p" {
		t.Errorf("FinalURL = %q", res.FinalURL)
	}
}

func TestScrapeAPIBatchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"success":true,"id":"job-1"}`))
			return
		}
		w.Write([]byte(`{"status":"scraping"}`))
	}))
	defer srv.Close()

	f, err := NewScrapeAPI(config.ScrapeAPISpec{
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		Deadline:     80 * time.Millisecond,
	}, "test-key", testLogger)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	_, err = f.FetchBatch(context.Background(), []string{"https://x.test/a"})
	if !errors.Is(err, types.ErrBatchTimeout) {
		t.Fatalf("error = %v, want ErrBatchTimeout", err)
	}
}
