package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultStaleThreshold is the age after which a pending or running
// execution is failed by the reaper.
const DefaultStaleThreshold = 600 * time.Second

// Reaper periodically fails executions stuck in a non-terminal state.
type Reaper struct {
	store     *Store
	threshold time.Duration
	interval  time.Duration
	now       func() time.Time
	// OnReap is called after every sweep that failed at least one execution.
	OnReap func(ReapResult)
}

// NewReaper creates a reaper sweeping every interval with the given threshold.
func NewReaper(store *Store, threshold, interval time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		store:     store,
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}
}

// Run starts the reaper loop. It blocks until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	slog.Info("reaper started", "interval", r.interval, "threshold", r.threshold)

	// Run once at startup
	r.reap(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

// Once runs a single sweep and reports what it failed.
func (r *Reaper) Once(ctx context.Context) (ReapResult, error) {
	res, err := r.store.ReapStale(ctx, r.threshold, r.now())
	if err != nil {
		return res, fmt.Errorf("reaping stale executions: %w", err)
	}
	if res.Total() > 0 {
		slog.Warn("reaped stale executions", "pending", res.Pending, "running", res.Running)
	}
	return res, nil
}

func (r *Reaper) reap(ctx context.Context) {
	res, err := r.Once(ctx)
	if err != nil {
		slog.Error("reaper sweep failed", "error", err)
		return
	}
	if res.Total() > 0 && r.OnReap != nil {
		r.OnReap(res)
	}
}
