package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backend identifiers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config represents the application configuration
type Config struct {
	// Torob endpoint
	TorobBaseURL string

	// Master switch; when false every search is rejected without network activity
	Enabled bool

	// Cache configuration
	CacheDurationHours int
	CacheBackend       string
	RedisAddr          string
	RedisDB            int

	// Rate limiting
	RateLimitInterval time.Duration
	BurstWindow       time.Duration
	BurstThreshold    int
	BlockTime         time.Duration
	MemcacheAddr      string

	// Fetching
	FetchTimeout time.Duration

	// Failure-driven cache invalidation
	InvalidationWindow    time.Duration
	InvalidationThreshold int

	// Bulk search
	BulkDelay time.Duration
	BulkMax   int

	// Persistence for search logs (and the cache when CacheBackend is empty)
	StoreBackend string
	DatabaseURL  string

	// Maintenance worker
	MaintenanceInterval time.Duration
	LogRetentionDays    int

	// HTTP server
	ListenAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	cacheDuration, _ := strconv.Atoi(getEnv("CACHE_DURATION_HOURS", "24"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rateLimitSecs, _ := strconv.Atoi(getEnv("RATE_LIMIT_SECONDS", "2"))
	fetchTimeoutSecs, _ := strconv.Atoi(getEnv("FETCH_TIMEOUT_SECONDS", "15"))
	burstWindowSecs, _ := strconv.Atoi(getEnv("BURST_WINDOW_SECONDS", "300"))
	burstThreshold, _ := strconv.Atoi(getEnv("BURST_THRESHOLD", "3"))
	blockTimeSecs, _ := strconv.Atoi(getEnv("BLOCK_TIME_SECONDS", "60"))
	invalidationWindowSecs, _ := strconv.Atoi(getEnv("INVALIDATION_WINDOW_SECONDS", "3600"))
	invalidationThreshold, _ := strconv.Atoi(getEnv("INVALIDATION_THRESHOLD", "2"))
	bulkDelayMillis, _ := strconv.Atoi(getEnv("BULK_DELAY_MILLIS", "100"))
	bulkMax, _ := strconv.Atoi(getEnv("BULK_MAX", "50"))
	maintenanceSecs, _ := strconv.Atoi(getEnv("MAINTENANCE_INTERVAL_SECONDS", "3600"))
	logRetentionDays, _ := strconv.Atoi(getEnv("LOG_RETENTION_DAYS", "90"))

	return Config{
		TorobBaseURL:          getEnv("TOROB_BASE_URL", "https://torob.com"),
		Enabled:               getEnv("TOROB_ENABLED", "1") != "0",
		CacheDurationHours:    clampCacheDuration(cacheDuration),
		CacheBackend:          getEnv("CACHE_BACKEND", ""),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               redisDB,
		RateLimitInterval:     time.Duration(rateLimitSecs) * time.Second,
		BurstWindow:           time.Duration(burstWindowSecs) * time.Second,
		BurstThreshold:        burstThreshold,
		BlockTime:             time.Duration(blockTimeSecs) * time.Second,
		MemcacheAddr:          getEnv("MEMCACHE_ADDR", ""),
		FetchTimeout:          time.Duration(fetchTimeoutSecs) * time.Second,
		InvalidationWindow:    time.Duration(invalidationWindowSecs) * time.Second,
		InvalidationThreshold: invalidationThreshold,
		BulkDelay:             time.Duration(bulkDelayMillis) * time.Millisecond,
		BulkMax:               bulkMax,
		StoreBackend:          getEnv("STORE_BACKEND", StoreMemory),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		MaintenanceInterval:   time.Duration(maintenanceSecs) * time.Second,
		LogRetentionDays:      logRetentionDays,
		ListenAddr:            getEnv("LISTEN_ADDR", ":8080"),
		Environment:           getEnv("TOROB_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.TorobBaseURL == "" {
		return fmt.Errorf("torob base URL must not be empty")
	}
	if c.RateLimitInterval <= 0 {
		return fmt.Errorf("rate limit interval must be positive, got %v", c.RateLimitInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %v", c.FetchTimeout)
	}
	if c.BurstThreshold <= 0 {
		return fmt.Errorf("burst threshold must be positive, got %d", c.BurstThreshold)
	}
	if c.BulkMax <= 0 {
		return fmt.Errorf("bulk max must be positive, got %d", c.BulkMax)
	}
	if c.StoreBackend != StoreMemory && c.StoreBackend != StorePostgres {
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres store backend")
	}
	if c.CacheBackend != "" && c.CacheBackend != StoreMemory && c.CacheBackend != StoreRedis && c.CacheBackend != StorePostgres {
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.CacheBackend == StorePostgres && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres cache backend")
	}
	return nil
}

// CacheDuration returns the cache TTL as a duration
func (c *Config) CacheDuration() time.Duration {
	return time.Duration(c.CacheDurationHours) * time.Hour
}

// clampCacheDuration bounds the cache duration to [1,168] hours, the same
// range the settings surface accepts
func clampCacheDuration(hours int) int {
	if hours < 1 {
		return 1
	}
	if hours > 168 {
		return 168
	}
	return hours
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
