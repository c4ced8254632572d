package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/clock"
)

var errUpstream = errors.New("upstream down")

func tripBreaker(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	for i := 0; i < MinRequests; i++ {
		_ = cb.Call(func() error { return errUpstream })
	}
	require.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_OpensOnErrorRate(t *testing.T) {
	cb := NewCircuitBreaker(clock.NewFake(time.Unix(0, 0)))

	for i := 0; i < MinRequests-1; i++ {
		_ = cb.Call(func() error { return errUpstream })
		assert.Equal(t, StateClosed, cb.State())
	}
	_ = cb.Call(func() error { return errUpstream })

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker(clock.NewFake(time.Unix(0, 0)))

	for i := 0; i < 20; i++ {
		var err error
		if i%3 == 0 {
			err = errUpstream
		}
		_ = cb.Call(func() error { return err })
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker(clk)
	tripBreaker(t, cb)

	clk.Advance(TimeoutDuration)

	for i := 0; i < HalfOpenMaxRequests; i++ {
		require.NoError(t, cb.Call(func() error { return nil }))
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker(clk)
	tripBreaker(t, cb)

	clk.Advance(TimeoutDuration)
	assert.ErrorIs(t, cb.Call(func() error { return errUpstream }), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "open", cb.State().String())
}

func TestCircuitBreaker_CustomSettingsAndObserver(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))

	var transitions []string
	cb := NewCircuitBreaker(clk,
		WithBreakerSettings(BreakerSettings{MinRequests: 2, OpenTimeout: time.Second, HalfOpenProbes: 1}),
		OnStateChange(func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	_ = cb.Call(func() error { return errUpstream })
	assert.Equal(t, StateClosed, cb.State())
	_ = cb.Call(func() error { return errUpstream })
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}
