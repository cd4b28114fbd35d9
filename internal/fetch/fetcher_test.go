package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		CacheDir:       t.TempDir(),
		CacheMaxAge:    time.Hour,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
		RetryDelay:     10 * time.Millisecond,
		RequestsPerSec: 100,
	}
}

func TestValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	localFile := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(localFile, []byte("a,b\n"), 0o600))

	fetcher, err := NewFetcher(testConfig(t))
	require.NoError(t, err)

	tests := []struct {
		name   string
		source string
		want   bool
	}{
		{name: "https url", source: "https://example.com/data.geojson", want: true},
		{name: "http url", source: "http://example.com/data.csv", want: true},
		{name: "existing local file", source: localFile, want: true},
		{name: "missing local file", source: filepath.Join(t.TempDir(), "nope.csv"), want: false},
		{name: "unsupported scheme", source: "ftp://example.com/data.csv", want: false},
		{name: "empty source", source: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fetcher.Validate(tt.source))
		})
	}
}

func TestFetchLocalPathBypassesCache(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	localFile := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(localFile, []byte("a,b\n1,2\n"), 0o600))

	fetcher, err := NewFetcher(testConfig(t))
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), localFile)
	require.NoError(t, err)

	assert.Equal(t, localFile, result.Path)
	assert.False(t, result.FromCache)
	assert.Equal(t, int64(8), result.Size)
}

func TestFetchCachesDownload(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"type":"FeatureCollection"}`))
	}))
	t.Cleanup(server.Close)

	fetcher, err := NewFetcher(testConfig(t))
	require.NoError(t, err)

	first, err := fetcher.Fetch(context.Background(), server.URL+"/departements.geojson")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, int64(28), first.Size)

	second, err := fetcher.Fetch(context.Background(), server.URL+"/departements.geojson")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Path, second.Path)

	assert.Equal(t, int32(1), hits.Load(), "cache hit must not touch the network")
}

func TestFetchExpiredCacheRefetches(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.CacheMaxAge = time.Nanosecond

	fetcher, err := NewFetcher(cfg)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.False(t, result.FromCache)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte("recovered"))
	}))
	t.Cleanup(server.Close)

	fetcher, err := NewFetcher(testConfig(t))
	require.NoError(t, err)

	result, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err, "a transient failure within MaxRetries must not surface")

	assert.False(t, result.FromCache)
	assert.Equal(t, int64(9), result.Size)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchExhaustedRetriesFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	fetcher, err := NewFetcher(testConfig(t))
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *FetchError

	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, int32(3), hits.Load(), "MaxRetries=2 means three attempts total")
}

func TestFetchCancelledContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.RetryDelay = time.Minute

	fetcher, err := NewFetcher(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = fetcher.Fetch(ctx, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
