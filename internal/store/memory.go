package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryCacheStore is an in-process CacheStore. It keeps full rows rather
// than a single value per product so expiry sweeps and stats behave like the
// relational backend.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[int64][]CacheEntry
	now     func() time.Time
}

// NewMemoryCacheStore creates an empty in-memory cache store
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{
		entries: make(map[int64][]CacheEntry),
		now:     time.Now,
	}
}

// WithClock overrides the store's clock, for tests
func (s *MemoryCacheStore) WithClock(now func() time.Time) *MemoryCacheStore {
	s.now = now
	return s
}

// Get returns the most recently updated unexpired entry for a product
func (s *MemoryCacheStore) Get(_ context.Context, productID int64) (*CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var best *CacheEntry
	for i := range s.entries[productID] {
		e := s.entries[productID][i]
		if !e.ExpiresAt.After(now) {
			continue
		}
		if best == nil || e.LastUpdated.After(best.LastUpdated) {
			entry := e
			best = &entry
		}
	}
	if best == nil {
		return nil, ErrCacheMiss
	}
	return best, nil
}

// Set replaces any existing rows for the entry's product
func (s *MemoryCacheStore) Set(_ context.Context, entry CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.ProductID] = []CacheEntry{entry}
	return nil
}

// Delete removes all rows for a product
func (s *MemoryCacheStore) Delete(_ context.Context, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, productID)
	return nil
}

// Clear removes every row
func (s *MemoryCacheStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[int64][]CacheEntry)
	return nil
}

// SweepExpired deletes rows whose expiry has passed
func (s *MemoryCacheStore) SweepExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for id, rows := range s.entries {
		kept := rows[:0]
		for _, e := range rows {
			if e.ExpiresAt.After(now) {
				kept = append(kept, e)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.entries, id)
		} else {
			s.entries[id] = kept
		}
	}
	return removed, nil
}

// Stats reports total/expired/valid row counts
func (s *MemoryCacheStore) Stats(_ context.Context) (CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var stats CacheStats
	for _, rows := range s.entries {
		for _, e := range rows {
			stats.Total++
			if e.ExpiresAt.After(now) {
				stats.Valid++
			} else {
				stats.Expired++
			}
		}
	}
	return stats, nil
}

// MemorySearchLogStore is an in-process append-only SearchLogStore
type MemorySearchLogStore struct {
	mu      sync.RWMutex
	entries []SearchLogEntry
}

// NewMemorySearchLogStore creates an empty in-memory search log
func NewMemorySearchLogStore() *MemorySearchLogStore {
	return &MemorySearchLogStore{}
}

// Append records one attempt
func (s *MemorySearchLogStore) Append(_ context.Context, entry SearchLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)
	return nil
}

// CountFailures counts failed attempts for one product since a point in time
func (s *MemorySearchLogStore) CountFailures(_ context.Context, productID int64, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.entries {
		if e.ProductID == productID && !e.Success && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// RecentFailures returns failed attempts since a point in time, newest first
func (s *MemorySearchLogStore) RecentFailures(_ context.Context, since time.Time) ([]SearchLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var failures []SearchLogEntry
	for _, e := range s.entries {
		if !e.Success && !e.CreatedAt.Before(since) {
			failures = append(failures, e)
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].CreatedAt.After(failures[j].CreatedAt)
	})
	return failures, nil
}

// Stats aggregates attempts since a point in time
func (s *MemorySearchLogStore) Stats(_ context.Context, since time.Time) (SearchStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats SearchStats
	var totalResponseTime int64
	var timedEntries int
	for _, e := range s.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		if e.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		if e.ResponseTimeMS != nil {
			totalResponseTime += *e.ResponseTimeMS
			timedEntries++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	if timedEntries > 0 {
		stats.AvgResponseTimeMS = float64(totalResponseTime) / float64(timedEntries)
	}
	return stats, nil
}

// Recent returns the newest entries up to limit
func (s *MemorySearchLogStore) Recent(_ context.Context, limit int) ([]SearchLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SearchLogEntry, len(s.entries))
	copy(out, s.entries)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Prune deletes entries older than the cutoff
func (s *MemorySearchLogStore) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(olderThan) {
			removed++
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return removed, nil
}
