// Package collector provides the periodic collection framework for netvault
// and the device health collector built on it.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Collector is a periodic background task. Both the health collector and the
// alarm engine run through it.
type Collector interface {
	Name() string
	Collect(ctx context.Context) error
	Interval() time.Duration
}

// WorkerPool bounds concurrent device polls across all collectors, so a scan
// and a collection running together never exceed the configured fan-out.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a worker pool with the given max concurrent workers.
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{sem: make(chan struct{}, maxWorkers)}
}

// Submit runs fn in the pool, blocking if all workers are busy.
// Returns ctx.Err() if context is cancelled while waiting.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
		go func() {
			defer func() { <-p.sem }()
			fn()
		}()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForEach runs fn once per item through the pool and waits for all
// submitted calls to return. Items not yet submitted when ctx is cancelled
// are skipped and ctx.Err() is returned.
func ForEach[T any](ctx context.Context, p *WorkerPool, items []T, fn func(T)) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for _, item := range items {
		wg.Add(1)
		if err := p.Submit(ctx, func() {
			defer wg.Done()
			fn(item)
		}); err != nil {
			wg.Done()
			return err
		}
	}
	return nil
}

// Run starts a collector loop that calls Collect at the configured interval.
// It blocks until the context is cancelled. Overlapping cycles are not
// possible: a slow cycle delays the next tick.
func Run(ctx context.Context, c Collector) error {
	name := c.Name()
	interval := c.Interval()
	slog.Info("collector started", "name", name, "interval", interval)

	// Collect immediately on startup
	runOnce(ctx, c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("collector stopped", "name", name)
			return ctx.Err()
		case <-ticker.C:
			runOnce(ctx, c)
		}
	}
}

func runOnce(ctx context.Context, c Collector) {
	start := time.Now()
	if err := c.Collect(ctx); err != nil {
		attrs := []any{"collector", c.Name(), "error", err}
		if IsRetryable(err) {
			slog.Warn("collection failed, retrying next cycle", attrs...)
			return
		}
		slog.Error("collection failed", attrs...)
		return
	}
	slog.Debug("collection finished", "collector", c.Name(), "duration", time.Since(start))
}

// RetryableError wraps an error that can be retried.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string     { return e.Err.Error() }
func (e *RetryableError) Unwrap() error     { return e.Err }
func (e *RetryableError) IsRetryable() bool { return true }

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, declares itself
// retryable.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	return errors.As(err, &r) && r.IsRetryable()
}
