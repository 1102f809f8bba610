// Package tasks runs best-effort work detached from request lifecycles.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single task when none is configured.
const DefaultTimeout = 30 * time.Second

// Runner starts named tasks in the background. A failing task is logged and
// affects nothing else.
type Runner struct {
	lg      *zap.Logger
	timeout time.Duration

	g      errgroup.Group
	mu     sync.RWMutex
	closed bool
}

// NewRunner creates a Runner. Each task gets a fresh context carrying lg
// and bounded by timeout.
func NewRunner(lg *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{lg: lg, timeout: timeout}
}

// Go starts fn unless the runner is draining.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lg := r.lg.With(zap.String("task", name))
	if r.closed {
		lg.Warn("Task dropped, runner is shutting down")
		return
	}

	r.g.Go(func() error {
		ctx, cancel := context.WithTimeout(zctx.Base(context.Background(), lg), r.timeout)
		defer cancel()

		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				lg.Error("Task panicked", zap.Any("panic", p))
			}
		}()
		if err := fn(ctx); err != nil {
			lg.Warn("Task failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return nil
		}
		lg.Debug("Task done", zap.Duration("duration", time.Since(start)))
		return nil
	})
}

// Wait stops accepting tasks and blocks until running ones finish.
func (r *Runner) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	_ = r.g.Wait()
}
