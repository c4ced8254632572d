package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ErrRunnerClosed is returned by Submit after Wait has been called.
var ErrRunnerClosed = errors.New("runner is closed")

// RunnerConfig sizes the worker pool.
type RunnerConfig struct {
	Workers int
}

// OutcomeFunc receives the outcome of every dispatched update.
type OutcomeFunc func(Outcome)

// Runner dispatches updates concurrently on a bounded pool. Updates from different scopes
// run in parallel; per-scope serialization is the job of the entries that need it.
type Runner struct {
	dispatcher *Dispatcher
	pool       *pool.Pool
	onOutcome  OutcomeFunc
	log        *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewRunner creates a Runner. Workers <= 0 means one worker.
func NewRunner(d *Dispatcher, cfg RunnerConfig, onOutcome OutcomeFunc, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Runner{
		dispatcher: d,
		pool:       pool.New().WithMaxGoroutines(cfg.Workers),
		onOutcome:  onOutcome,
		log:        log,
	}
}

// Submit schedules upd. It blocks while every worker is busy.
func (r *Runner) Submit(ctx context.Context, upd update.Update) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRunnerClosed
	}

	r.pool.Go(func() {
		outcome := r.dispatcher.Dispatch(ctx, upd)
		if r.onOutcome != nil {
			r.onOutcome(outcome)
		}
	})

	return nil
}

// Wait stops accepting updates and blocks until every submitted update has finished.
func (r *Runner) Wait() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.pool.Wait()
	r.log.Info("dispatch runner drained")
}

// Shutdown drains the runner, giving up when ctx is done.
func (r *Runner) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
