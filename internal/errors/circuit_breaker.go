package errors

import (
	"errors"
	"sync"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/clock"
)

// Defaults used when BreakerSettings leaves a field zero.
const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	ErrHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// BreakerSettings tune when the breaker trips and how it probes recovery.
type BreakerSettings struct {
	// ErrorThreshold is the failure ratio in [0,1] that opens the circuit.
	ErrorThreshold float64
	// MinRequests is the sample size required before the ratio is evaluated.
	MinRequests int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenProbes successful probes close the circuit again.
	HalfOpenProbes int
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.ErrorThreshold <= 0 || s.ErrorThreshold > 1 {
		s.ErrorThreshold = ErrorThreshold
	}
	if s.MinRequests <= 0 {
		s.MinRequests = MinRequests
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = TimeoutDuration
	}
	if s.HalfOpenProbes <= 0 {
		s.HalfOpenProbes = HalfOpenMaxRequests
	}
	return s
}

type BreakerOption func(*CircuitBreaker)

func WithBreakerSettings(s BreakerSettings) BreakerOption {
	return func(cb *CircuitBreaker) { cb.settings = s.withDefaults() }
}

// OnStateChange registers fn to be called after every state change. fn runs under the
// breaker's lock and must not call back into it.
func OnStateChange(fn func(from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// window counts outcomes since the last state change.
type window struct {
	requests  int
	failures  int
	successes int
}

func (w window) failureRate() float64 {
	if w.requests == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.requests)
}

// CircuitBreaker stops calling a failing dependency once its error rate crosses the threshold
// and lets a few probes through after the open timeout.
type CircuitBreaker struct {
	mu       sync.Mutex
	clock    clock.Clock
	settings BreakerSettings
	onChange func(from, to State)

	state    State
	counts   window
	inFlight int
	openedAt time.Time
}

func NewCircuitBreaker(clk clock.Clock, opts ...BreakerOption) *CircuitBreaker {
	if clk == nil {
		clk = clock.Real()
	}

	cb := &CircuitBreaker{
		clock:    clk,
		settings: BreakerSettings{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call runs fn unless the circuit rejects it. The error returned by fn is passed through.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.settings.OpenTimeout {
			return ErrCircuitOpen
		}
		cb.moveLocked(StateHalfOpen)
	case StateHalfOpen:
		if cb.counts.requests+cb.inFlight >= cb.settings.HalfOpenProbes {
			return ErrHalfOpenTooManyRequests
		}
	}

	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.inFlight--
	cb.counts.requests++

	if err != nil {
		cb.counts.failures++
		switch {
		case cb.state == StateHalfOpen:
			cb.moveLocked(StateOpen)
		case cb.counts.requests >= cb.settings.MinRequests && cb.counts.failureRate() >= cb.settings.ErrorThreshold:
			cb.moveLocked(StateOpen)
		}
		return
	}

	cb.counts.successes++
	if cb.state == StateHalfOpen && cb.counts.successes >= cb.settings.HalfOpenProbes {
		cb.moveLocked(StateClosed)
	}
}

func (cb *CircuitBreaker) moveLocked(to State) {
	from := cb.state
	cb.state = to
	cb.counts = window{}
	if to == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	if cb.onChange != nil && from != to {
		cb.onChange(from, to)
	}
}
