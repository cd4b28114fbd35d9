// Package fetch retrieves remote datasets with on-disk caching, bounded
// retries, and a polite rate limit toward the public data portals.
//
// Cache entries are keyed by a stable hash of the source URL, one file per key
// under the configured root directory. There is no index file; the key
// derivation alone determines the path, so the directory can be browsed or
// pruned externally.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
)

const (
	cacheKeyLen = 16 // hex chars of the URL hash used in the cache file name
	dirPerm     = 0o755
)

type (
	// Result describes one completed fetch.
	Result struct {
		// Path is the local file holding the resource bytes.
		Path string
		// FromCache reports whether a fresh cache entry was reused.
		FromCache bool
		// Size is the resource size in bytes.
		Size int64
		// Elapsed is the wall time the fetch took, including retries.
		Elapsed time.Duration
	}

	// FetchError reports a download that failed after exhausting all attempts.
	FetchError struct {
		Source   string
		Attempts int
		Err      error
	}

	// Fetcher downloads remote resources with caching and retry. A single
	// Fetcher is safe to share across pipelines; concurrent fetches of distinct
	// sources never collide because cache paths are derived per source.
	Fetcher struct {
		config  *Config
		client  *http.Client
		limiter *rate.Limiter
		logger  *slog.Logger
	}
)

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch of %s failed after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetcher creates a Fetcher and ensures the cache directory exists.
func NewFetcher(cfg *Config) (*Fetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.CacheDir, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	requestsPerSec := cfg.RequestsPerSec
	if requestsPerSec <= 0 {
		requestsPerSec = defaultRequestsPerSec
	}

	return &Fetcher{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Validate reports whether source is a well-formed http(s) URL or an existing
// local path. It never performs network I/O.
func (f *Fetcher) Validate(source string) bool {
	if source == "" {
		return false
	}

	if parsed, err := url.Parse(source); err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != "" {
		return true
	}

	info, err := os.Stat(source)

	return err == nil && !info.IsDir()
}

// Fetch resolves source to a local file.
//
// An existing local path is returned directly, bypassing network and cache. A
// remote URL is served from the cache when the entry is younger than
// CacheMaxAge; otherwise it is downloaded with up to MaxRetries retries at a
// fixed RetryDelay, and the body is written to the cache path before returning.
//
// Exhausting all attempts fails with a *FetchError wrapping the last
// underlying error.
func (f *Fetcher) Fetch(ctx context.Context, source string) (*Result, error) {
	started := time.Now()

	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		return &Result{
			Path:      source,
			FromCache: false,
			Size:      info.Size(),
			Elapsed:   time.Since(started),
		}, nil
	}

	cachePath := f.cachePath(source)

	if info, err := os.Stat(cachePath); err == nil {
		age := time.Since(info.ModTime())
		if age < f.config.CacheMaxAge {
			f.logger.Debug("Serving from cache",
				slog.String("source", source),
				slog.String("path", cachePath),
				slog.Duration("age", age))

			return &Result{
				Path:      cachePath,
				FromCache: true,
				Size:      info.Size(),
				Elapsed:   time.Since(started),
			}, nil
		}
	}

	size, err := f.download(ctx, source, cachePath)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:      cachePath,
		FromCache: false,
		Size:      size,
		Elapsed:   time.Since(started),
	}, nil
}

// download performs the network fetch with bounded retries and a fixed delay
// between attempts. On success the body lands in cachePath via a temp file so
// a concurrent reader never observes a half-written entry.
func (f *Fetcher) download(ctx context.Context, source, cachePath string) (int64, error) {
	attempts := f.config.MaxRetries + 1

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return 0, &FetchError{Source: source, Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(f.config.RetryDelay):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return 0, &FetchError{Source: source, Attempts: attempt, Err: err}
		}

		size, err := f.downloadOnce(ctx, source, cachePath)
		if err == nil {
			return size, nil
		}

		lastErr = err

		f.logger.Warn("Download attempt failed",
			slog.String("source", source),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()))
	}

	return 0, &FetchError{Source: source, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) downloadOnce(ctx context.Context, source, cachePath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, source)
	}

	tmp, err := os.CreateTemp(filepath.Dir(cachePath), ".fetch-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to write response body: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		_ = os.Remove(tmp.Name())

		return 0, fmt.Errorf("failed to move download into cache: %w", err)
	}

	return size, nil
}

// cachePath derives the deterministic cache file path for a source URL. The
// original file extension is preserved so cached files stay recognizable.
func (f *Fetcher) cachePath(source string) string {
	sum := sha256.Sum256([]byte(source))
	name := hex.EncodeToString(sum[:])[:cacheKeyLen]

	if parsed, err := url.Parse(source); err == nil {
		if ext := path.Ext(parsed.Path); ext != "" {
			name += ext
		}
	}

	return filepath.Join(f.config.CacheDir, name)
}
