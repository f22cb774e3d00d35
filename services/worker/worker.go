// Package worker runs the periodic maintenance pass over the stores:
// sweeping expired cache rows and pruning old search log entries.
package worker

import (
	"context"
	"time"

	"smokhtari/torobworker/internal/store"
	"smokhtari/torobworker/logger"
)

// Worker handles the periodic maintenance process
type Worker struct {
	cache     store.CacheStore
	logs      store.SearchLogStore
	interval  time.Duration
	retention time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// NewWorker creates a maintenance worker. Retention bounds how far back
// search log entries are kept.
func NewWorker(cache store.CacheStore, logs store.SearchLogStore, interval, retention time.Duration) *Worker {
	return &Worker{
		cache:     cache,
		logs:      logs,
		interval:  interval,
		retention: retention,
		log:       logger.ForWorker(),
		now:       time.Now,
	}
}

// WithClock overrides the worker's clock, for tests
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Start runs maintenance passes until the context is cancelled. One pass runs
// immediately so a restart does not postpone overdue cleanup by a full
// interval.
func (w *Worker) Start(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Maintenance worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single maintenance pass
func (w *Worker) RunOnce(ctx context.Context) {
	start := w.now()

	swept, err := w.cache.SweepExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Expired cache sweep failed")
	}

	pruned, err := w.logs.Prune(ctx, start.Add(-w.retention))
	if err != nil {
		w.log.Error().Err(err).Msg("Search log prune failed")
	}

	w.log.Info().
		Int64("swept_cache_entries", swept).
		Int64("pruned_log_entries", pruned).
		Str("elapsed", time.Since(start).String()).
		Msg("Maintenance pass finished")
}
