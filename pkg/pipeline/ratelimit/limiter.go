// Package ratelimit paces outbound calls to the document store and the
// extraction provider (spec.md §4.1), local by default with an optional
// Redis-backed distributed mode for multi-process deployments.
//
// Grounded on evalgo-org-eve's http/server.go token-bucket wrapper and
// storj-storj's satellite/metainfo/bloomrate sliding-window limiter.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

const (
	minRPS     = 0.1
	maxRPS     = 10
	defaultRPS = 3.0
	burst      = 1
)

// Limiter paces calls to one credit per interval. Burst is fixed at 1 so
// grants are strictly interval-paced rather than allowing bursts to
// accumulate while idle.
type Limiter struct {
	rl *rate.Limiter
}

// New builds a Limiter for requestsPerSecond, clamped to [0.1, 10]. A
// value of 0 selects the default of 3.0 (spec.md §6).
func New(requestsPerSecond float64) *Limiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = defaultRPS
	}
	if requestsPerSecond < minRPS {
		requestsPerSecond = minRPS
	}
	if requestsPerSecond > maxRPS {
		requestsPerSecond = maxRPS
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until one credit is available or ctx is done. Grants are
// FIFO by construction of the underlying rate.Limiter.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}
