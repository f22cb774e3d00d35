// Package cache provides the small TTL flag cache the rate limiter uses to
// remember that the upstream source is actively rejecting requests.
package cache

import (
	"time"
)

// CacheService represents a generic TTL key-value cache
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
