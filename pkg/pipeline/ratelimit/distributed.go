package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// window is the sliding-window size for the distributed counter. One
// second matches the finest granularity requests_per_second expresses.
const window = time.Second

// DistributedLimiter paces calls across multiple processes sharing one
// Redis instance, falling back to a local Limiter whenever Redis is
// unreachable so a Redis outage degrades pacing rather than blocking
// every caller outright.
type DistributedLimiter struct {
	rdb      *redis.Client
	scope    string
	rps      float64
	local    *Limiter
	fallback atomic.Int64
	log      *slog.Logger
}

// NewDistributed builds a DistributedLimiter keyed by scope (e.g. the
// store's hostname). requestsPerSecond is clamped the same way New does.
func NewDistributed(rdb *redis.Client, scope string, requestsPerSecond float64, log *slog.Logger) *DistributedLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &DistributedLimiter{
		rdb:   rdb,
		scope: scope,
		rps:   clampRPS(requestsPerSecond),
		local: New(requestsPerSecond),
		log:   log,
	}
}

func clampRPS(rps float64) float64 {
	if rps == 0 {
		rps = defaultRPS
	}
	if rps < minRPS {
		rps = minRPS
	}
	if rps > maxRPS {
		rps = maxRPS
	}
	return rps
}

// FallbackCount reports how many times Wait fell back to the local
// limiter because of a Redis error, for observability.
func (d *DistributedLimiter) FallbackCount() int64 {
	return d.fallback.Load()
}

// Wait blocks until the shared window has capacity, or ctx is done. On
// any Redis error it logs, counts the fallback, and delegates to the
// local limiter for this call only.
func (d *DistributedLimiter) Wait(ctx context.Context) error {
	for {
		allowed, retryAfter, err := d.tryAcquire(ctx)
		if err != nil {
			d.fallback.Add(1)
			d.log.Warn("ratelimit: redis unavailable, falling back to local limiter", "scope", d.scope, "error", err)
			return d.local.Wait(ctx)
		}
		if allowed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

// tryAcquire increments the current window's counter and reports whether
// the caller is within the per-window budget derived from d.rps.
func (d *DistributedLimiter) tryAcquire(ctx context.Context) (allowed bool, retryAfter time.Duration, err error) {
	key := fmt.Sprintf("rate:%s:%d", d.scope, time.Now().UnixNano()/window.Nanoseconds())

	pipe := d.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	budget := int64(d.rps)
	if budget < 1 {
		budget = 1
	}
	if incr.Val() <= budget {
		return true, 0, nil
	}
	return false, 50 * time.Millisecond, nil
}
