package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smscraper/pkg/logger"
)

// directCheckClient bypasses the proxy transport so fake proxy addresses can
// be "validated" against a local test server.
func directCheckClient(*Proxy) (*http.Client, error) {
	return &http.Client{Timeout: 2 * time.Second}, nil
}

func newTestPool(t *testing.T, addresses []string, testURL string) *Pool {
	t.Helper()

	pool := NewPool(Options{
		Sources:  []Source{&StaticSource{Addresses: addresses}},
		TestURLs: []string{testURL},
		Logger:   logger.NewTestLogger(),
	})
	pool.newCheckClient = directCheckClient
	return pool
}

func TestInitializeValidatesCandidates(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	pool := newTestPool(t, []string{
		"http://10.0.0.1:8080",
		"http://10.0.0.2:8080",
		"http://10.0.0.3:8080",
	}, okServer.URL)

	require.NoError(t, pool.Initialize(context.Background()))

	stats := pool.GetStats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Working)

	proxy, ok := pool.Acquire(context.Background())
	require.True(t, ok)
	assert.True(t, proxy.Working)
}

func TestInitializeAllValidationsFail(t *testing.T) {
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failServer.Close()

	pool := newTestPool(t, []string{
		"http://10.0.0.1:8080",
		"http://10.0.0.2:8080",
		"http://10.0.0.3:8080",
	}, failServer.URL)

	require.NoError(t, pool.Initialize(context.Background()))

	assert.Equal(t, 0, pool.WorkingCount())
	_, ok := pool.Acquire(context.Background())
	assert.False(t, ok, "expected no proxy from an all-failed pool")
}

func TestAcquireReturnsOnlyWorkingMembers(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	pool := newTestPool(t, []string{
		"http://10.0.0.1:8080",
		"http://10.0.0.2:8080",
	}, okServer.URL)
	require.NoError(t, pool.Initialize(context.Background()))

	// Keep the scarcity rotation out of this test: it would re-validate and
	// re-admit the failed proxy.
	pool.opts.LowWaterMark = 0

	// Knock one proxy out of the working set.
	pool.ReportFailure("http://10.0.0.1:8080")

	for i := 0; i < 50; i++ {
		proxy, ok := pool.Acquire(context.Background())
		require.True(t, ok)
		assert.Equal(t, "http://10.0.0.2:8080", proxy.Address)
	}
}

func TestFailThresholdEvicts(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	pool := newTestPool(t, []string{"http://10.0.0.1:8080"}, okServer.URL)
	require.NoError(t, pool.Initialize(context.Background()))
	pool.opts.LowWaterMark = 0 // suppress the scarcity rotation

	for i := 0; i < 3; i++ {
		pool.ReportFailure("http://10.0.0.1:8080")
	}

	_, ok := pool.Acquire(context.Background())
	assert.False(t, ok)

	// Success reports alone do not lift an eviction.
	pool.ReportSuccess("http://10.0.0.1:8080")
	assert.Equal(t, 0, pool.WorkingCount())

	// A fresh validation cycle re-admits the proxy.
	require.NoError(t, pool.validateAll(context.Background()))
	assert.Equal(t, 1, pool.WorkingCount())

	proxy, ok := pool.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, "http://10.0.0.1:8080", proxy.Address)
	assert.Equal(t, 0, proxy.FailCount)
}

func TestReportSuccessReadmits(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	pool := newTestPool(t, []string{"http://10.0.0.1:8080"}, okServer.URL)
	require.NoError(t, pool.Initialize(context.Background()))

	// One failure drops the proxy out of the working set but does not evict.
	pool.ReportFailure("http://10.0.0.1:8080")
	assert.Equal(t, 0, pool.WorkingCount())

	pool.ReportSuccess("http://10.0.0.1:8080")
	assert.Equal(t, 1, pool.WorkingCount())

	proxy, ok := pool.Acquire(context.Background())
	require.True(t, ok)
	assert.True(t, proxy.Working)
	assert.Equal(t, 1, proxy.SuccessCount)
}

func TestReportsOnUnknownAddressAreIgnored(t *testing.T) {
	pool := NewPool(Options{Logger: logger.NewTestLogger()})

	pool.ReportSuccess("http://203.0.113.5:3128")
	pool.ReportFailure("http://203.0.113.5:3128")

	assert.Equal(t, 0, pool.GetStats().Total)
}

func TestCacheRoundTrip(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	cachePath := filepath.Join(t.TempDir(), "proxies.json")

	pool := NewPool(Options{
		Sources:   []Source{&StaticSource{Addresses: []string{"http://10.0.0.1:8080", "http://10.0.0.2:8080"}}},
		TestURLs:  []string{okServer.URL},
		CacheFile: cachePath,
		Logger:    logger.NewTestLogger(),
	})
	pool.newCheckClient = directCheckClient
	require.NoError(t, pool.Initialize(context.Background()))
	require.NoError(t, pool.Save())

	// A second pool seeds its working set straight from the cache.
	reloaded := NewPool(Options{
		CacheFile: cachePath,
		Logger:    logger.NewTestLogger(),
	})
	require.NoError(t, reloaded.Load())

	stats := reloaded.GetStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Working)
}

func TestCacheStaleIgnored(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "proxies.json")

	pool := NewPool(Options{CacheFile: cachePath, Logger: logger.NewTestLogger()})
	pool.admit([]Candidate{{Address: "http://10.0.0.1:8080", Protocol: "http"}})
	pool.recordValidation("http://10.0.0.1:8080", true)
	require.NoError(t, pool.Save())

	reloaded := NewPool(Options{
		CacheFile:   cachePath,
		CacheMaxAge: time.Hour,
		Logger:      logger.NewTestLogger(),
	})
	// Pretend the cache was written over an hour ago.
	reloaded.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, reloaded.Load())

	assert.Equal(t, 0, reloaded.GetStats().Total)
}

func TestCacheEvictedEntriesStayOut(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "proxies.json")

	pool := NewPool(Options{CacheFile: cachePath, Logger: logger.NewTestLogger()})
	pool.admit([]Candidate{{Address: "http://10.0.0.1:8080", Protocol: "http"}})
	pool.mu.Lock()
	pool.all["http://10.0.0.1:8080"].FailCount = 5
	pool.mu.Unlock()
	require.NoError(t, pool.Save())

	reloaded := NewPool(Options{CacheFile: cachePath, Logger: logger.NewTestLogger()})
	require.NoError(t, reloaded.Load())

	stats := reloaded.GetStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Working)
	assert.Equal(t, 1, stats.Evicted)
}

func TestRotationShufflesWhenPlentiful(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer.Close()

	addresses := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		addresses = append(addresses, fmt.Sprintf("http://10.0.1.%d:8080", i+1))
	}

	pool := newTestPool(t, addresses, okServer.URL)
	require.NoError(t, pool.Initialize(context.Background()))
	require.Equal(t, 12, pool.WorkingCount())

	// Force staleness; the cheap path must keep the same membership.
	pool.mu.Lock()
	pool.lastRotation = time.Now().Add(-time.Hour)
	pool.mu.Unlock()

	proxy, ok := pool.Acquire(context.Background())
	require.True(t, ok)
	assert.NotNil(t, proxy)
	assert.Equal(t, 12, pool.WorkingCount())
}
