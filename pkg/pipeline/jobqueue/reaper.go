package jobqueue

import (
	"context"
	"log/slog"
	"time"
)

const defaultReapInterval = 10 * time.Minute

// Reaper purges terminal jobs past their result_ttl (spec.md §4.9),
// adapted from pkg/cleanup/service.go's start/stop/ticker shape: run
// once immediately, then on every tick until stopped.
type Reaper struct {
	backend  Backend
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper builds a Reaper purging jobs whose terminal state is older
// than ttl, checking every interval. ttl defaults to 24h and interval to
// 10m when zero.
func NewReaper(backend Backend, ttl, interval time.Duration, log *slog.Logger) *Reaper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if interval <= 0 {
		interval = defaultReapInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{backend: backend, ttl: ttl, interval: interval, log: log}
}

// Start launches the background purge loop.
func (r *Reaper) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx)
	r.log.Info("job reaper started", "result_ttl", r.ttl, "interval", r.interval)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.log.Info("job reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	r.purgeOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.purgeOnce(ctx)
		}
	}
}

func (r *Reaper) purgeOnce(ctx context.Context) {
	cutoff := time.Now().Add(-r.ttl)
	purged, err := r.backend.Purge(ctx, cutoff)
	if err != nil {
		r.log.Error("job purge failed", "error", err)
		return
	}
	if purged > 0 {
		r.log.Info("purged expired jobs", "count", purged)
	}
}
