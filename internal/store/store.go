// Package store persists price cache entries and the append-only search log.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when no unexpired cache entry exists for a product
var ErrCacheMiss = errors.New("cache miss")

// CacheEntry is a stored, time-bounded price result for one product
type CacheEntry struct {
	ProductID     int64      `json:"product_id"`
	MinPrice      *int64     `json:"min_price"`
	TorobURL      string     `json:"torob_url"`
	SearchQuery   string     `json:"search_query"`
	FoundProducts int        `json:"found_products"`
	LastUpdated   time.Time  `json:"last_updated"`
	ExpiresAt     time.Time  `json:"expires_at"`
}

// SearchLogEntry records one search attempt; rows are never mutated
type SearchLogEntry struct {
	ProductID      int64     `json:"product_id"`
	SearchQuery    string    `json:"search_query"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	ResponseTimeMS *int64    `json:"response_time_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CacheStats summarizes the cache table
type CacheStats struct {
	Total   int `json:"total_entries"`
	Expired int `json:"expired_entries"`
	Valid   int `json:"valid_entries"`
}

// SearchStats summarizes the search log over a trailing window
type SearchStats struct {
	Total             int     `json:"total_searches"`
	Successful        int     `json:"successful_searches"`
	Failed            int     `json:"failed_searches"`
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMS float64 `json:"avg_response_time"`
}

// CacheStore holds at most one unexpired entry per product. Set is
// delete-then-insert and deliberately not transactional: two concurrent
// writers for the same product can briefly leave zero or two rows, which the
// most-recent read tiebreak and the expiry sweep converge away.
type CacheStore interface {
	// Get returns the most recently updated unexpired entry, or ErrCacheMiss
	Get(ctx context.Context, productID int64) (*CacheEntry, error)

	// Set replaces any existing rows for the entry's product
	Set(ctx context.Context, entry CacheEntry) error

	// Delete removes all rows for a product
	Delete(ctx context.Context, productID int64) error

	// Clear removes every row
	Clear(ctx context.Context) error

	// SweepExpired deletes rows whose expiry has passed, returning the count
	SweepExpired(ctx context.Context) (int64, error)

	// Stats reports total/expired/valid row counts
	Stats(ctx context.Context) (CacheStats, error)
}

// SearchLogStore is the append-only search attempt log
type SearchLogStore interface {
	// Append records one attempt
	Append(ctx context.Context, entry SearchLogEntry) error

	// CountFailures counts failed attempts for one product since a point in time
	CountFailures(ctx context.Context, productID int64, since time.Time) (int, error)

	// RecentFailures returns failed attempts across all products since a point
	// in time, newest first; the burst detector reads these
	RecentFailures(ctx context.Context, since time.Time) ([]SearchLogEntry, error)

	// Stats aggregates attempts since a point in time
	Stats(ctx context.Context, since time.Time) (SearchStats, error)

	// Recent returns the newest entries up to limit
	Recent(ctx context.Context, limit int) ([]SearchLogEntry, error)

	// Prune deletes entries older than the cutoff, returning the count
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
