// Package metrics exposes Prometheus collectors for the dispatch core.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Total number of dispatched updates labeled by final status and stop reason",
		},
		[]string{"status", "reason"},
	)
	dispatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Duration of a full handler chain execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	handlerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handler_duration_seconds",
			Help:    "Duration of individual chain handlers in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "signal"},
	)
	handlerPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_panics_total",
			Help: "Total number of panics recovered from chain handlers",
		},
		[]string{"handler"},
	)
	accessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of access control decisions",
		},
		[]string{"decision"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of dialogue state transitions",
		},
		[]string{"from", "to"},
	)
	duplicateUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_updates_total",
			Help: "Total number of updates dropped as already processed",
		},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Current number of scopes holding a dialogue state",
		},
	)
	sessionsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_by_state",
			Help: "Number of scopes per dialogue state",
		},
		[]string{"state"},
	)
)

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordDispatch counts a finished dispatch and records its duration.
func RecordDispatch(status, reason string, duration time.Duration) {
	status = orUnknown(status)
	if reason == "" {
		reason = "none"
	}

	dispatchOutcomesTotal.WithLabelValues(status, reason).Inc()
	dispatchDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordHandler records the duration and resulting signal of one chain handler.
func RecordHandler(handler, signal string, duration time.Duration) {
	handlerDurationSeconds.WithLabelValues(orUnknown(handler), orUnknown(signal)).Observe(duration.Seconds())
}

// RecordPanic counts a recovered handler panic.
func RecordPanic(handler string) {
	handlerPanicsTotal.WithLabelValues(orUnknown(handler)).Inc()
}

// RecordAccessDecision counts an access control decision.
func RecordAccessDecision(decision string) {
	accessDecisionsTotal.WithLabelValues(orUnknown(decision)).Inc()
}

// RecordStateTransition tracks dialogue transitions.
func RecordStateTransition(from, to string) {
	stateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// RecordDuplicate counts an update dropped by de-duplication.
func RecordDuplicate() {
	duplicateUpdatesTotal.Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

// StateCounter reports how many scopes currently sit in each dialogue state.
type StateCounter interface {
	CountStates(ctx context.Context) (map[string]int, error)
}

// StateCollector periodically gathers dialogue state counts and emits gauge metrics.
type StateCollector struct {
	counter  StateCounter
	interval time.Duration
	log      *slog.Logger
}

// NewStateCollector builds a collector bound to the provided counter.
func NewStateCollector(counter StateCounter, interval time.Duration, log *slog.Logger) *StateCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &StateCollector{counter: counter, interval: interval, log: log}
}

// Run polls the counter every interval until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.counter == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.collect(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("state collector failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	counts, err := c.counter.CountStates(ctx)
	if err != nil {
		return err
	}

	total := 0
	sessionsByState.Reset()
	for state, count := range counts {
		sessionsByState.WithLabelValues(orUnknown(state)).Set(float64(count))
		total += count
	}
	activeSessions.Set(float64(total))

	return nil
}
