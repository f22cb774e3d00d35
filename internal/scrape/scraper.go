// Package scrape implements the search pipeline: fetch a Torob results page,
// extract the lowest price, cache it, and record every attempt in the search
// log. One Search call produces exactly one log entry.
package scrape

import (
	"context"
	stderrors "errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"smokhtari/torobworker/config"
	"smokhtari/torobworker/internal/extract"
	"smokhtari/torobworker/internal/ratelimit"
	"smokhtari/torobworker/internal/store"
	"smokhtari/torobworker/logger"
	scrapeerrors "smokhtari/torobworker/pkg/errors"
)

// PageFetcher abstracts the outbound HTTP layer
type PageFetcher interface {
	FetchSearchPage(ctx context.Context, query string) (string, error)
	SearchURL(query string) string
}

// Limiter abstracts the reactive burst detector
type Limiter interface {
	IsLimited(ctx context.Context) (bool, error)
}

// Scraper orchestrates cache lookups, rate limiting, fetching and extraction
type Scraper struct {
	cfg      config.Config
	fetcher  PageFetcher
	cache    store.CacheStore
	logs     store.SearchLogStore
	gate     *ratelimit.Gate
	detector Limiter
	metrics  *Metrics
	log      *logger.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a scraper. The detector and metrics may be nil.
func New(cfg config.Config, fetcher PageFetcher, cacheStore store.CacheStore, logStore store.SearchLogStore, gate *ratelimit.Gate, detector Limiter, metrics *Metrics) *Scraper {
	return &Scraper{
		cfg:      cfg,
		fetcher:  fetcher,
		cache:    cacheStore,
		logs:     logStore,
		gate:     gate,
		detector: detector,
		metrics:  metrics,
		log:      logger.ForScraper(),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithClock overrides the scraper's clock and sleep, for tests
func (s *Scraper) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Scraper {
	s.now = now
	s.sleep = sleep
	return s
}

// Search looks up the lowest Torob price for a product, serving from cache
// when an unexpired entry exists. Failures come back as *errors.ScrapeError
// with a localized user message.
func (s *Scraper) Search(ctx context.Context, productID int64, productName string) (*Result, error) {
	trace := uuid.NewString()[:8]
	query := strings.TrimSpace(productName)

	if utf8.RuneCountInString(query) < 2 {
		se := scrapeerrors.New(scrapeerrors.CategoryInvalidInput, nil)
		return s.fail(ctx, trace, productID, query, se, nil)
	}

	if !s.cfg.Enabled {
		se := scrapeerrors.New(scrapeerrors.CategoryDisabled, nil)
		return s.fail(ctx, trace, productID, query, se, nil)
	}

	if entry, err := s.cache.Get(ctx, productID); err == nil {
		s.metrics.IncCacheHit()
		s.metrics.IncSearch("success")
		s.appendLog(ctx, store.SearchLogEntry{
			ProductID:   productID,
			SearchQuery: query,
			Success:     true,
			CreatedAt:   s.now(),
		})
		s.log.Debug().
			Str("trace", trace).
			Int64("product_id", productID).
			Msg("Cache hit")
		return resultFromEntry(entry, true), nil
	} else if !stderrors.Is(err, store.ErrCacheMiss) {
		s.log.Warn().
			Str("trace", trace).
			Int64("product_id", productID).
			Err(err).
			Msg("Cache read failed, falling through to fetch")
	}
	s.metrics.IncCacheMiss()

	if s.detector != nil {
		limited, err := s.detector.IsLimited(ctx)
		if err != nil {
			// A broken detector must not take searches down with it
			s.log.Warn().Str("trace", trace).Err(err).Msg("Burst detection failed")
		} else if limited {
			se := scrapeerrors.New(scrapeerrors.CategoryThrottled, nil)
			return s.fail(ctx, trace, productID, query, se, nil)
		}
	}

	if err := s.gate.Wait(ctx); err != nil {
		return s.fail(ctx, trace, productID, query, scrapeerrors.FromRaw(err), nil)
	}

	start := s.now()
	html, err := s.fetcher.FetchSearchPage(ctx, query)
	elapsed := s.now().Sub(start)
	elapsedMS := elapsed.Milliseconds()
	s.metrics.ObserveRequest(elapsed)

	if err != nil {
		var se *scrapeerrors.ScrapeError
		if stderrors.Is(err, ErrEmptyBody) {
			se = scrapeerrors.New(scrapeerrors.CategoryEmptyResponse, err)
		} else {
			se = scrapeerrors.FromRaw(err)
		}
		return s.fail(ctx, trace, productID, query, se, &elapsedMS)
	}

	extracted, err := extract.Extract(html, query)
	if err != nil {
		se := scrapeerrors.New(scrapeerrors.CategoryNotFound, err)
		return s.fail(ctx, trace, productID, query, se, &elapsedMS)
	}
	if extracted.MinPrice == nil {
		se := scrapeerrors.New(scrapeerrors.CategoryParse, stderrors.New(extracted.Err))
		return s.fail(ctx, trace, productID, query, se, &elapsedMS)
	}

	now := s.now()
	entry := store.CacheEntry{
		ProductID:     productID,
		MinPrice:      extracted.MinPrice,
		TorobURL:      s.fetcher.SearchURL(query),
		SearchQuery:   query,
		FoundProducts: extracted.FoundProducts,
		LastUpdated:   now,
		ExpiresAt:     now.Add(s.cfg.CacheDuration()),
	}
	if err := s.cache.Set(ctx, entry); err != nil {
		// The result is still good; the next search just refetches
		s.log.Warn().
			Str("trace", trace).
			Int64("product_id", productID).
			Err(err).
			Msg("Cache write failed")
	}

	s.metrics.IncSearch("success")
	s.appendLog(ctx, store.SearchLogEntry{
		ProductID:      productID,
		SearchQuery:    query,
		Success:        true,
		ResponseTimeMS: &elapsedMS,
		CreatedAt:      now,
	})

	s.log.Info().
		Str("trace", trace).
		Int64("product_id", productID).
		Int64("min_price", *extracted.MinPrice).
		Int("found_products", extracted.FoundProducts).
		Int64("response_time_ms", elapsedMS).
		Msg("Search succeeded")

	result := resultFromEntry(&entry, false)
	result.AllPrices = extracted.AllPrices
	return result, nil
}

// Refresh drops any cached entry for the product and searches again
func (s *Scraper) Refresh(ctx context.Context, productID int64, productName string) (*Result, error) {
	if err := s.cache.Delete(ctx, productID); err != nil {
		return nil, err
	}
	return s.Search(ctx, productID, productName)
}

// GetCached returns the cached result for a product without any network
// activity. Misses come back as store.ErrCacheMiss.
func (s *Scraper) GetCached(ctx context.Context, productID int64) (*Result, error) {
	entry, err := s.cache.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	return resultFromEntry(entry, true), nil
}

// BulkSearch runs sequential searches for a batch of products with a small
// delay between requests. The batch is capped; excess products are reported
// as skipped rather than silently dropped.
func (s *Scraper) BulkSearch(ctx context.Context, products []BulkProduct) (*BulkReport, error) {
	report := &BulkReport{Total: len(products)}

	capped := products
	if len(capped) > s.cfg.BulkMax {
		capped = capped[:s.cfg.BulkMax]
	}

	for i, p := range capped {
		if i > 0 && s.cfg.BulkDelay > 0 {
			if err := s.sleep(ctx, s.cfg.BulkDelay); err != nil {
				return report, err
			}
		}

		res, err := s.Search(ctx, p.ID, p.Name)
		if err != nil {
			se := scrapeerrors.AsScrapeError(err)
			report.Failed++
			report.Items = append(report.Items, BulkItem{
				ProductID: p.ID,
				Status:    "error",
				Message:   se.Message,
			})
			continue
		}

		price := res.MinPrice
		report.Succeeded++
		report.Items = append(report.Items, BulkItem{
			ProductID: p.ID,
			Status:    "success",
			Price:     &price,
		})
	}

	// Over-cap items go last so the report keeps the input order
	for _, p := range products[len(capped):] {
		report.Failed++
		report.Items = append(report.Items, BulkItem{
			ProductID: p.ID,
			Status:    "error",
			Message:   "batch limit exceeded",
		})
	}

	return report, nil
}

// fail is the single failure path: record metrics, append the log entry, and
// invalidate the product's cache when critical failures pile up
func (s *Scraper) fail(ctx context.Context, trace string, productID int64, query string, se *scrapeerrors.ScrapeError, responseMS *int64) (*Result, error) {
	s.metrics.IncSearch("failure")
	s.metrics.IncError(string(se.Category))

	now := s.now()
	msg := se.LogMessage()
	s.appendLog(ctx, store.SearchLogEntry{
		ProductID:      productID,
		SearchQuery:    query,
		Success:        false,
		ErrorMessage:   &msg,
		ResponseTimeMS: responseMS,
		CreatedAt:      now,
	})

	s.log.Warn().
		Str("trace", trace).
		Int64("product_id", productID).
		Str("category", string(se.Category)).
		Err(se.Err).
		Msg("Search failed")

	if se.Category.Critical() {
		count, err := s.logs.CountFailures(ctx, productID, now.Add(-s.cfg.InvalidationWindow))
		if err != nil {
			s.log.Warn().Str("trace", trace).Err(err).Msg("Failure count lookup failed")
		} else if count > s.cfg.InvalidationThreshold {
			if err := s.cache.Delete(ctx, productID); err != nil {
				s.log.Warn().
					Str("trace", trace).
					Int64("product_id", productID).
					Err(err).
					Msg("Cache invalidation failed")
			} else {
				s.metrics.IncInvalidation()
				s.log.Info().
					Str("trace", trace).
					Int64("product_id", productID).
					Int("recent_failures", count).
					Msg("Cache invalidated after repeated critical failures")
			}
		}
	}

	return nil, se
}

func (s *Scraper) appendLog(ctx context.Context, entry store.SearchLogEntry) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.log.Warn().Int64("product_id", entry.ProductID).Err(err).Msg("Search log append failed")
	}
}

func resultFromEntry(entry *store.CacheEntry, fromCache bool) *Result {
	var min int64
	if entry.MinPrice != nil {
		min = *entry.MinPrice
	}
	return &Result{
		ProductID:     entry.ProductID,
		MinPrice:      min,
		TorobURL:      entry.TorobURL,
		SearchQuery:   entry.SearchQuery,
		FoundProducts: entry.FoundProducts,
		LastUpdated:   entry.LastUpdated,
		FromCache:     fromCache,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
