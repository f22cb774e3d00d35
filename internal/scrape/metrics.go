package scrape

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the search pipeline.
type Metrics struct {
	Registry           *prometheus.Registry
	SearchesTotal      *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	RequestDuration    prometheus.Histogram
	ErrorsTotal        *prometheus.CounterVec
	InvalidationsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	searches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "torob_searches_total",
			Help: "Total search calls by outcome.",
		},
		[]string{"outcome"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "torob_cache_hits_total",
			Help: "Searches answered from the price cache.",
		},
	)
	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "torob_cache_misses_total",
			Help: "Searches that had to go to the upstream source.",
		},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "torob_request_duration_seconds",
			Help:    "Outbound search request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "torob_errors_total",
			Help: "Total failed searches by failure category.",
		},
		[]string{"category"},
	)
	invalidations := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "torob_cache_invalidations_total",
			Help: "Cache entries removed after repeated critical failures.",
		},
	)

	registry.MustRegister(searches, cacheHits, cacheMisses, requestDuration, errorsTotal, invalidations)

	return &Metrics{
		Registry:           registry,
		SearchesTotal:      searches,
		CacheHitsTotal:     cacheHits,
		CacheMissesTotal:   cacheMisses,
		RequestDuration:    requestDuration,
		ErrorsTotal:        errorsTotal,
		InvalidationsTotal: invalidations,
	}
}

// IncSearch increments the searches counter for an outcome label.
func (m *Metrics) IncSearch(outcome string) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(outcome).Inc()
}

// IncCacheHit increments the cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// IncCacheMiss increments the cache miss counter.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// ObserveRequest records one outbound request duration.
func (m *Metrics) ObserveRequest(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncError increments the error counter for a category label.
func (m *Metrics) IncError(category string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(category).Inc()
}

// IncInvalidation increments the invalidation counter.
func (m *Metrics) IncInvalidation() {
	if m == nil {
		return
	}
	m.InvalidationsTotal.Inc()
}
