package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/Proton-105/himera-dispatch/internal/health"
)

// ErrNotReady is reported by Readiness before startup finished and once shutdown began.
var ErrNotReady = errors.New("process is not ready")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes backs the liveness and readiness endpoints of the ops server.
type Probes struct {
	checker *health.Checker
	ready   atomic.Bool
	log     *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates Probes that start out not ready.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// MarkReady flips readiness on once every component is wired.
func (p *Probes) MarkReady() {
	p.ready.Store(true)
	p.log.Info("process marked ready")
}

// MarkNotReady flips readiness off so load balancers stop sending webhooks.
func (p *Probes) MarkNotReady() {
	p.ready.Store(false)
}

// Liveness reports success while the process can serve HTTP at all.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

func (p *Probes) Readiness(ctx context.Context) error {
	if !p.ready.Load() {
		return ErrNotReady
	}
	if p.checker == nil {
		return nil
	}
	if _, healthy := p.checker.Check(ctx); !healthy {
		return errors.New("a dependency is unhealthy")
	}
	return nil
}

// Mount registers /livez, /readyz and, when a checker is set, the detailed /healthz.
func (p *Probes) Mount(mux *http.ServeMux) {
	mux.Handle("/livez", probeHandler(p.Liveness))
	mux.Handle("/readyz", probeHandler(p.Readiness))
	if p.checker != nil {
		mux.Handle("/healthz", p.checker.Handler())
	}
}

func probeHandler(probe func(context.Context) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := probe(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
}
