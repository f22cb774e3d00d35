// Package ratelimit paces outbound scrape requests. Two independent
// mechanisms: a hard minimum-spacing gate between requests, and a reactive
// burst detector that reads recent failure history to infer active blocking
// by the upstream source.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"smokhtari/torobworker/internal/store"
	"smokhtari/torobworker/services/cache"
)

// Gate enforces a minimum delay between outbound requests. Callers are
// serialized through the single mutex; the read of the last timestamp and the
// stamp of the new one happen as one step so concurrent callers cannot both
// pass the throttle.
type Gate struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewGate creates a gate with the given minimum inter-request interval
func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithClock overrides the gate's clock and sleep, for tests
func (g *Gate) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) *Gate {
	g.now = now
	g.sleep = sleep
	return g
}

// Wait blocks until at least the configured interval has elapsed since the
// previous Wait returned, then records the new timestamp
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.last.IsZero() {
		if elapsed := now.Sub(g.last); elapsed < g.interval {
			if err := g.sleep(ctx, g.interval-elapsed); err != nil {
				return err
			}
			now = g.now()
		}
	}
	g.last = now
	return nil
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

// exhaustionKeywords mark log messages that indicate the upstream is
// actively rejecting us rather than merely failing. Self-imposed rejections
// are logged under the request-throttled category, which matches none of
// these, so the detector cannot keep itself tripped on its own output.
var exhaustionKeywords = []string{"timeout", "blocked", "forbidden", "403", "429", "rate-limit"}

const blockFlagKey = "torob:upstream_blocked"

// FailureLog is the slice of the search log the detector needs
type FailureLog interface {
	RecentFailures(ctx context.Context, since time.Time) ([]store.SearchLogEntry, error)
}

// BurstDetector decides whether to short-circuit before a fetch is even
// attempted. A positive verdict is remembered in the flag cache for the block
// time so the window scan does not rerun on every call.
type BurstDetector struct {
	logs      FailureLog
	flags     cache.CacheService
	window    time.Duration
	threshold int
	blockTime time.Duration
	now       func() time.Time
}

// NewBurstDetector creates a detector over the given failure log. The flag
// cache may be nil, in which case every call scans the log window.
func NewBurstDetector(logs FailureLog, flags cache.CacheService, window time.Duration, threshold int, blockTime time.Duration) *BurstDetector {
	return &BurstDetector{
		logs:      logs,
		flags:     flags,
		window:    window,
		threshold: threshold,
		blockTime: blockTime,
		now:       time.Now,
	}
}

// WithClock overrides the detector's clock, for tests
func (d *BurstDetector) WithClock(now func() time.Time) *BurstDetector {
	d.now = now
	return d
}

// IsLimited reports whether failed attempts matching a transport-exhaustion
// signature exceeded the threshold within the trailing window
func (d *BurstDetector) IsLimited(ctx context.Context) (bool, error) {
	if d.flags != nil {
		if _, err := d.flags.Get(blockFlagKey); err == nil {
			return true, nil
		}
	}

	failures, err := d.logs.RecentFailures(ctx, d.now().Add(-d.window))
	if err != nil {
		return false, err
	}

	matching := 0
	for _, f := range failures {
		if f.ErrorMessage == nil {
			continue
		}
		if matchesExhaustion(*f.ErrorMessage) {
			matching++
		}
	}

	if matching <= d.threshold {
		return false, nil
	}

	if d.flags != nil {
		// Best effort; a failed flag write only costs an extra scan later
		_ = d.flags.Set(blockFlagKey, []byte("1"), d.blockTime)
	}
	return true, nil
}

func matchesExhaustion(message string) bool {
	lowered := strings.ToLower(message)
	for _, kw := range exhaustionKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}
