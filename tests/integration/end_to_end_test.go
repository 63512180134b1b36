package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smscraper/pkg/dispatch"
	"smscraper/pkg/errors"
	"smscraper/pkg/logger"
	"smscraper/pkg/proxy"
	"smscraper/pkg/ratelimit"
	"smscraper/pkg/scraper"
	"smscraper/pkg/storage"
	"smscraper/pkg/useragent"
)

// newLimiter builds a real limiter with fast, jitter-free pacing.
func newLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	limiter, err := ratelimit.New(map[string]ratelimit.Config{
		"default": {
			RequestsPerMinute: 100,
			RequestsPerHour:   1000,
			RequestsPerDay:    10000,
			BurstLimit:        50,
			CooldownPeriod:    10 * time.Millisecond,
			JitterFraction:    0,
		},
	}, logger.NewTestLogger())
	if err != nil {
		t.Fatalf("Failed to build limiter: %v", err)
	}
	return limiter
}

func newDispatcher(t *testing.T, limiter *ratelimit.Limiter, provider dispatch.ProxyProvider) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(limiter, provider, useragent.NewRotator(100, time.Minute), dispatch.Options{
		MaxAttempts:    5,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryMaxDelay:  40 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
		Logger:         logger.NewTestLogger(),
		Metrics:        dispatch.NewMetrics(),
	})
	if err != nil {
		t.Fatalf("Failed to build dispatcher: %v", err)
	}
	return d
}

// TestDispatcherRecoversFromRateLimit drives a 429-then-200 upstream through
// the real limiter and dispatcher.
func TestDispatcherRecoversFromRateLimit(t *testing.T) {
	server := NewMockServer()
	defer server.Close()
	server.Script("/data", http.StatusTooManyRequests)

	limiter := newLimiter(t)
	d := newDispatcher(t, limiter, nil)

	resp, err := d.Send(context.Background(), &dispatch.Request{
		URL:         server.URL() + "/data",
		Destination: "default",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if hits := server.Hits("/data"); hits != 2 {
		t.Errorf("Expected 2 upstream hits, got %d", hits)
	}

	// The 429 doubled the backoff, the success decayed it: 1.0*2*0.8.
	stats := limiter.Stats("default")
	if stats.BackoffMultiplier < 1.59 || stats.BackoffMultiplier > 1.61 {
		t.Errorf("Expected backoff multiplier 1.6, got %.2f", stats.BackoffMultiplier)
	}
}

// TestProxiedDispatchThroughPool validates and uses a proxy against the
// scripted server, which answers both the health check and the request.
func TestProxiedDispatchThroughPool(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	pool := proxy.NewPool(proxy.Options{
		Sources:           []proxy.Source{&proxy.StaticSource{Addresses: []string{server.URL()}}},
		TestURLs:          []string{"http://upstream.invalid/healthz"},
		ValidationTimeout: 2 * time.Second,
		LowWaterMark:      1,
		Logger:            logger.NewTestLogger(),
	})
	if err := pool.Initialize(context.Background()); err != nil {
		t.Fatalf("Pool initialization failed: %v", err)
	}
	if pool.WorkingCount() != 1 {
		t.Fatalf("Expected 1 working proxy, got %d", pool.WorkingCount())
	}

	d := newDispatcher(t, newLimiter(t), pool)
	resp, err := d.Send(context.Background(), &dispatch.Request{
		URL:           "http://upstream.invalid/data",
		Destination:   "default",
		ProxyRequired: true,
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if resp.ProxyAddress != server.URL() {
		t.Errorf("Expected request to use proxy %s, got %q", server.URL(), resp.ProxyAddress)
	}
	if server.Hits("/data") != 1 {
		t.Errorf("Expected the proxied request to reach the server")
	}

	proxies := pool.Snapshot()
	if len(proxies) != 1 || proxies[0].SuccessCount == 0 {
		t.Errorf("Expected the proxy success to be recorded, got %+v", proxies)
	}
}

// TestEndToEndScrapeSession runs a full session: dispatch, normalize, store.
// One target fails with a terminal upstream error and must not abort the
// rest.
func TestEndToEndScrapeSession(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	server.SetFeed("/users/alice", []byte(`[
		{"id": "1", "author": "alice", "content": "hello #go"},
		{"id": "2", "author": "alice", "content": "again"}
	]`))
	server.Script("/users/bob", http.StatusNotFound)
	server.SetFeed("/users/carol", []byte(`[{"id": "3", "author": "carol", "content": "hi"}]`))

	outputDir := t.TempDir()
	store, err := storage.NewManager(outputDir)
	if err != nil {
		t.Fatalf("Failed to create storage manager: %v", err)
	}

	adapter := &scraper.JSONFeedAdapter{PlatformName: "twitter", BaseURL: server.URL() + "/users"}
	session, err := scraper.NewSession(newDispatcher(t, newLimiter(t), nil), adapter, store, logger.NewTestLogger(), false)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	results := session.ScrapeTargets(context.Background(), []string{"alice", "bob", "carol"})

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Saved != 2 {
		t.Errorf("Expected alice to save 2 posts, got %+v", results[0])
	}
	if results[1].Err == nil || !errors.Is(results[1].Err, errors.TypeUpstream) {
		t.Errorf("Expected bob to fail with an upstream error, got %+v", results[1])
	}
	if results[2].Err != nil || results[2].Saved != 1 {
		t.Errorf("Expected carol to save 1 post despite bob failing, got %+v", results[2])
	}

	for _, name := range []string{"twitter_post_1.json", "twitter_post_2.json", "twitter_post_3.json"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("Expected record %s on disk: %v", name, err)
		}
	}
}
