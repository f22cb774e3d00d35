package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smokhtari/torobworker/config"
	"smokhtari/torobworker/internal/ratelimit"
	"smokhtari/torobworker/internal/store"
	scrapeerrors "smokhtari/torobworker/pkg/errors"
)

type stubFetcher struct {
	html  string
	err   error
	calls int
}

func (s *stubFetcher) FetchSearchPage(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.html, s.err
}

func (s *stubFetcher) SearchURL(query string) string {
	return "https://torob.com/search/?query=" + query
}

type stubLimiter struct {
	limited bool
}

func (s *stubLimiter) IsLimited(_ context.Context) (bool, error) {
	return s.limited, nil
}

func testConfig() config.Config {
	return config.Config{
		TorobBaseURL:          "https://torob.com",
		Enabled:               true,
		CacheDurationHours:    24,
		RateLimitInterval:     0,
		FetchTimeout:          5 * time.Second,
		InvalidationWindow:    time.Hour,
		InvalidationThreshold: 2,
		BulkMax:               50,
		BulkDelay:             0,
	}
}

type testEnv struct {
	scraper *Scraper
	fetcher *stubFetcher
	limiter *stubLimiter
	cache   *store.MemoryCacheStore
	logs    *store.MemorySearchLogStore
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	env := &testEnv{
		fetcher: &stubFetcher{html: testSearchPage},
		limiter: &stubLimiter{},
		cache:   store.NewMemoryCacheStore(),
		logs:    store.NewMemorySearchLogStore(),
	}
	env.scraper = New(cfg, env.fetcher, env.cache, env.logs, ratelimit.NewGate(cfg.RateLimitInterval), env.limiter, nil)
	return env
}

func TestSearchSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	result, err := env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)

	assert.Equal(t, int64(42), result.ProductID)
	assert.Equal(t, int64(1250000), result.MinPrice)
	assert.Equal(t, 1, result.FoundProducts)
	assert.False(t, result.FromCache)
	assert.Contains(t, result.TorobURL, "/search/")

	// The result must be cached
	entry, err := env.cache.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, entry.MinPrice)
	assert.Equal(t, int64(1250000), *entry.MinPrice)
	assert.True(t, entry.ExpiresAt.After(entry.LastUpdated))

	// Exactly one successful log entry with a measured response time
	recent, err := env.logs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Success)
	require.NotNil(t, recent[0].ResponseTimeMS)
}

func TestSearchCacheHitSkipsFetch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)
	assert.Equal(t, 1, env.fetcher.calls)

	result, err := env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, 1, env.fetcher.calls, "cache hit must not reach the network")

	// The cache hit still shows up in the log, without a response time
	recent, err := env.logs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Success)
	assert.Nil(t, recent[0].ResponseTimeMS)
}

func TestSearchInvalidName(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.scraper.Search(ctx, 42, "  x  ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryInvalidInput, se.Category)
	assert.Equal(t, 0, env.fetcher.calls)

	recent, err := env.logs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
}

func TestSearchDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	env := newTestEnv(t, cfg)

	_, err := env.scraper.Search(context.Background(), 42, "گوشی سامسونگ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryDisabled, se.Category)
	assert.Equal(t, 0, env.fetcher.calls)
}

func TestSearchLimitedByDetector(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.limiter.limited = true

	_, err := env.scraper.Search(context.Background(), 42, "گوشی سامسونگ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryThrottled, se.Category)
	assert.Equal(t, 0, env.fetcher.calls)

	// The rejection must not read like upstream exhaustion in the log, or the
	// detector would keep itself tripped on its own output
	recent, err := env.logs.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].ErrorMessage)
	for _, kw := range []string{"timeout", "blocked", "forbidden", "403", "429", "rate-limit"} {
		assert.NotContains(t, *recent[0].ErrorMessage, kw)
	}
}

func TestSearchNotFound(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.fetcher.html = `<html><body><div class="empty">نتیجه‌ای یافت نشد</div></body></html>`

	_, err := env.scraper.Search(context.Background(), 42, "گوشی سامسونگ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryNotFound, se.Category)
	assert.Equal(t, "محصول در ترب یافت نشد", se.Message)
}

func TestSearchEmptyResponse(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.fetcher.html = ""
	env.fetcher.err = ErrEmptyBody

	_, err := env.scraper.Search(context.Background(), 42, "گوشی سامسونگ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryEmptyResponse, se.Category)
}

func TestRepeatedCriticalFailuresInvalidateCache(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	// An expired row forces a live fetch but stays visible in stats until
	// something deletes it, which makes invalidation observable
	minPrice := int64(1250000)
	require.NoError(t, env.cache.Set(ctx, store.CacheEntry{
		ProductID:   42,
		MinPrice:    &minPrice,
		SearchQuery: "گوشی سامسونگ",
		LastUpdated: time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}))

	env.fetcher.err = errors.New("unexpected status code: 403")
	env.fetcher.html = ""

	for i := 0; i < 2; i++ {
		_, err := env.scraper.Search(ctx, 42, "گوشی سامسونگ")
		require.Error(t, err)
	}

	// Two failures stay under the threshold, the row survives
	stats, err := env.cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)

	_, err = env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.Error(t, err)

	se := scrapeerrors.AsScrapeError(err)
	assert.Equal(t, scrapeerrors.CategoryForbidden, se.Category)

	count, err := env.logs.CountFailures(ctx, 42, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// The third critical failure inside the window crossed the threshold
	stats, err = env.cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestRefreshDropsCacheFirst(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)
	assert.Equal(t, 1, env.fetcher.calls)

	result, err := env.scraper.Refresh(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 2, env.fetcher.calls, "refresh must refetch even with a valid cache entry")
}

func TestGetCached(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.scraper.GetCached(ctx, 42)
	assert.True(t, errors.Is(err, store.ErrCacheMiss))

	_, err = env.scraper.Search(ctx, 42, "گوشی سامسونگ")
	require.NoError(t, err)

	result, err := env.scraper.GetCached(ctx, 42)
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	assert.Equal(t, int64(1250000), result.MinPrice)
}

func TestBulkSearch(t *testing.T) {
	env := newTestEnv(t, testConfig())

	report, err := env.scraper.BulkSearch(context.Background(), []BulkProduct{
		{ID: 1, Name: "گوشی سامسونگ"},
		{ID: 2, Name: "x"},
		{ID: 3, Name: "لپ تاپ"},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items, 3)

	assert.Equal(t, "success", report.Items[0].Status)
	require.NotNil(t, report.Items[0].Price)
	assert.Equal(t, int64(1250000), *report.Items[0].Price)

	assert.Equal(t, "error", report.Items[1].Status)
	assert.Equal(t, "نام محصول نامعتبر است", report.Items[1].Message)
}

func TestBulkSearchCapsBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BulkMax = 1
	env := newTestEnv(t, cfg)

	report, err := env.scraper.BulkSearch(context.Background(), []BulkProduct{
		{ID: 1, Name: "گوشی سامسونگ"},
		{ID: 2, Name: "لپ تاپ"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, env.fetcher.calls)

	// Items follow input order, with the over-cap rejection last
	require.Len(t, report.Items, 2)
	assert.Equal(t, int64(1), report.Items[0].ProductID)
	assert.Equal(t, "success", report.Items[0].Status)
	assert.Equal(t, int64(2), report.Items[1].ProductID)
	assert.Equal(t, "batch limit exceeded", report.Items[1].Message)
}
