package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

func TestRunner_DispatchesManyScopesConcurrently(t *testing.T) {
	const scopes = 50

	var inFlight, peak atomic.Int32
	d := NewBuilder(nil).RegisterFunc("work", func(c *Context, upd update.Update) Result {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return Stop()
	}).Build()

	var mu sync.Mutex
	outcomes := make(map[update.Scope]Status)
	r := NewRunner(d, RunnerConfig{Workers: 8}, func(o Outcome) {
		mu.Lock()
		outcomes[o.Scope] = o.Status
		mu.Unlock()
	}, nil)

	for i := 0; i < scopes; i++ {
		require.NoError(t, r.Submit(context.Background(), textUpdate(int64(i), int64(i+1), int64(i+1), "hi")))
	}
	r.Wait()

	assert.Len(t, outcomes, scopes)
	for _, status := range outcomes {
		assert.Equal(t, StatusStopped, status)
	}
	assert.Greater(t, peak.Load(), int32(1))
	assert.LessOrEqual(t, peak.Load(), int32(8))
}

func TestRunner_SubmitAfterWait(t *testing.T) {
	r := NewRunner(NewBuilder(nil).Build(), RunnerConfig{}, nil, nil)
	r.Wait()

	assert.ErrorIs(t, r.Submit(context.Background(), textUpdate(1, 1, 1, "hi")), ErrRunnerClosed)
}

func TestRunner_ShutdownHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	d := NewBuilder(nil).RegisterFunc("block", func(c *Context, upd update.Update) Result {
		<-release
		return Stop()
	}).Build()

	r := NewRunner(d, RunnerConfig{Workers: 1}, nil, nil)
	require.NoError(t, r.Submit(context.Background(), textUpdate(1, 1, 1, "hi")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}

func TestRunner_PanickingPredicateStillReportsOutcome(t *testing.T) {
	d := NewBuilder(nil).
		Register(Func("h", func(c *Context, upd update.Update) Result { return Stop() }),
			func(upd update.Update) bool {
				if upd.ID == 1 {
					panic("boom")
				}
				return true
			}).
		Build()

	var mu sync.Mutex
	statuses := make(map[int64]Status)
	r := NewRunner(d, RunnerConfig{Workers: 2}, func(o Outcome) {
		mu.Lock()
		statuses[o.UpdateID] = o.Status
		mu.Unlock()
	}, nil)

	require.NoError(t, r.Submit(context.Background(), textUpdate(1, 1, 1, "hi")))
	require.NoError(t, r.Submit(context.Background(), textUpdate(2, 2, 2, "hi")))
	require.NotPanics(t, r.Wait)

	assert.Equal(t, map[int64]Status{1: StatusFailed, 2: StatusStopped}, statuses)
}
