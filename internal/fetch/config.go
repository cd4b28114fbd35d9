package fetch

import (
	"errors"
	"strings"
	"time"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
)

const (
	defaultCacheDir       = ".cache/bewhere"
	defaultCacheMaxAge    = 24 * time.Hour
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRetryDelay     = 2 * time.Second
	defaultRequestsPerSec = 2
)

var (
	// ErrCacheDirEmpty is returned when the cache directory is an empty string.
	ErrCacheDirEmpty = errors.New("cache directory cannot be empty")

	// ErrNegativeRetries is returned when the retry count is negative.
	ErrNegativeRetries = errors.New("max retries cannot be negative")
)

// Config holds download behavior configuration with production-ready defaults.
type Config struct {
	CacheDir       string        // Root directory for cached downloads
	CacheMaxAge    time.Duration // Freshness TTL for cache entries
	RequestTimeout time.Duration // Per-request timeout
	MaxRetries     int           // Retries after the first failed attempt
	RetryDelay     time.Duration // Fixed delay between attempts
	RequestsPerSec int           // Polite rate limit toward public data portals
}

// LoadConfig loads fetch configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		CacheDir:       config.GetEnvStr("ETL_CACHE_DIR", defaultCacheDir),
		CacheMaxAge:    config.GetEnvDuration("ETL_CACHE_MAX_AGE", defaultCacheMaxAge),
		RequestTimeout: config.GetEnvDuration("ETL_REQUEST_TIMEOUT", defaultRequestTimeout),
		MaxRetries:     config.GetEnvInt("ETL_MAX_RETRIES", defaultMaxRetries),
		RetryDelay:     config.GetEnvDuration("ETL_RETRY_DELAY", defaultRetryDelay),
		RequestsPerSec: config.GetEnvInt("ETL_REQUESTS_PER_SEC", defaultRequestsPerSec),
	}
}

// Validate checks if the fetch configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return ErrCacheDirEmpty
	}

	if c.MaxRetries < 0 {
		return ErrNegativeRetries
	}

	return nil
}
