package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func TestMemoryCacheStoreSetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCacheStore()

	entry := CacheEntry{
		ProductID:     42,
		MinPrice:      int64Ptr(850000),
		TorobURL:      "https://torob.com/search/?query=x",
		SearchQuery:   "گوشی سامسونگ",
		FoundProducts: 5,
		LastUpdated:   time.Now(),
		ExpiresAt:     time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, s.Set(ctx, entry))

	got, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(850000), *got.MinPrice)
	assert.Equal(t, entry.TorobURL, got.TorobURL)
	assert.Equal(t, entry.SearchQuery, got.SearchQuery)

	_, err = s.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	current := now
	s := NewMemoryCacheStore().WithClock(func() time.Time { return current })

	require.NoError(t, s.Set(ctx, CacheEntry{
		ProductID:   1,
		MinPrice:    int64Ptr(100000),
		LastUpdated: now,
		ExpiresAt:   now.Add(time.Hour),
	}))

	_, err := s.Get(ctx, 1)
	assert.NoError(t, err)

	// Advance past expiry; the row still exists but reads miss
	current = now.Add(2 * time.Hour)
	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CacheStats{Total: 1, Expired: 1, Valid: 0}, stats)
}

func TestMemoryCacheStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	current := now
	s := NewMemoryCacheStore().WithClock(func() time.Time { return current })

	require.NoError(t, s.Set(ctx, CacheEntry{ProductID: 1, LastUpdated: now, ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, s.Set(ctx, CacheEntry{ProductID: 2, LastUpdated: now, ExpiresAt: now.Add(time.Hour)}))

	current = now.Add(30 * time.Minute)
	removed, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The unexpired row must survive the sweep
	_, err = s.Get(ctx, 2)
	assert.NoError(t, err)

	stats, _ := s.Stats(ctx)
	assert.Equal(t, CacheStats{Total: 1, Expired: 0, Valid: 1}, stats)
}

func TestMemoryCacheStoreDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCacheStore()

	expires := time.Now().Add(time.Hour)
	require.NoError(t, s.Set(ctx, CacheEntry{ProductID: 1, LastUpdated: time.Now(), ExpiresAt: expires}))
	require.NoError(t, s.Set(ctx, CacheEntry{ProductID: 2, LastUpdated: time.Now(), ExpiresAt: expires}))

	require.NoError(t, s.Delete(ctx, 1))
	_, err := s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemorySearchLogStoreCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySearchLogStore()
	now := time.Now()

	entries := []SearchLogEntry{
		{ProductID: 42, Success: false, ErrorMessage: strPtr("access-forbidden: x"), CreatedAt: now.Add(-30 * time.Minute)},
		{ProductID: 42, Success: false, ErrorMessage: strPtr("server-error: y"), CreatedAt: now.Add(-10 * time.Minute)},
		{ProductID: 42, Success: true, ResponseTimeMS: int64Ptr(120), CreatedAt: now.Add(-5 * time.Minute)},
		{ProductID: 7, Success: false, ErrorMessage: strPtr("not-found: z"), CreatedAt: now.Add(-1 * time.Minute)},
		{ProductID: 42, Success: false, ErrorMessage: strPtr("old"), CreatedAt: now.Add(-2 * time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	count, err := s.CountFailures(ctx, 42, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count, "failures outside the window must not count")

	failures, err := s.RecentFailures(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, failures, 3)
	// newest first
	assert.Equal(t, int64(7), failures[0].ProductID)
}

func TestMemorySearchLogStoreStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySearchLogStore()
	now := time.Now()

	require.NoError(t, s.Append(ctx, SearchLogEntry{ProductID: 1, Success: true, ResponseTimeMS: int64Ptr(100), CreatedAt: now}))
	require.NoError(t, s.Append(ctx, SearchLogEntry{ProductID: 2, Success: true, ResponseTimeMS: int64Ptr(300), CreatedAt: now}))
	require.NoError(t, s.Append(ctx, SearchLogEntry{ProductID: 3, Success: false, CreatedAt: now}))

	stats, err := s.Stats(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 66.66, stats.SuccessRate, 0.1)
	assert.InDelta(t, 200.0, stats.AvgResponseTimeMS, 0.01)
}

func TestMemorySearchLogStoreRecentAndPrune(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySearchLogStore()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, SearchLogEntry{
			ProductID: int64(i),
			Success:   true,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, int64(4), recent[0].ProductID)

	removed, err := s.Prune(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	all, _ := s.Recent(ctx, 0)
	assert.Len(t, all, 3)
}
