package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/logger"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
)

// Status is the terminal state of one dispatch.
type Status string

const (
	// StatusStopped means a handler returned Stop.
	StatusStopped Status = "stopped"
	// StatusUnclaimed means every handler continued or was skipped. It is an implicit Stop.
	StatusUnclaimed Status = "unclaimed"
	// StatusFailed means a handler returned Error, panicked, or the deadline expired.
	StatusFailed Status = "failed"
)

// Outcome describes how the chain finished for one update.
type Outcome struct {
	UpdateID      int64
	Scope         update.Scope
	Status        Status
	Handler       string
	Reason        string
	Err           error
	CorrelationID string
	Duration      time.Duration
}

// TimedOut reports whether the chain was truncated by the deadline.
func (o Outcome) TimedOut() bool {
	return errors.Is(o.Err, apperrors.ErrTimeout)
}

// ErrorReporter receives failed dispatch outcomes. *errors.Handler implements it.
type ErrorReporter interface {
	Handle(ctx context.Context, err error, attrs ...slog.Attr) (string, bool)
}

// Option customizes a Dispatcher.
type Option func(*options)

type options struct {
	timeout   time.Duration
	injectors []Injector
	reporter  ErrorReporter
}

// WithTimeout bounds the whole chain execution for each update.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithInjector runs fn on every fresh Context before the first handler.
func WithInjector(fn Injector) Option {
	return func(o *options) {
		if fn != nil {
			o.injectors = append(o.injectors, fn)
		}
	}
}

// WithErrorReporter routes failed outcomes to r instead of the plain logger.
func WithErrorReporter(r ErrorReporter) Option {
	return func(o *options) {
		o.reporter = r
	}
}

type entry struct {
	name    string
	handler Handler
	preds   []Predicate
}

func (e entry) applies(upd update.Update) bool {
	for _, p := range e.preds {
		if !p(upd) {
			return false
		}
	}
	return true
}

// Builder collects chain entries. It is not safe for concurrent use.
type Builder struct {
	entries []entry
	opts    options
	log     *slog.Logger
}

// NewBuilder creates an empty Builder.
func NewBuilder(log *slog.Logger, opts ...Option) *Builder {
	if log == nil {
		log = slog.Default()
	}

	b := &Builder{log: log}
	for _, opt := range opts {
		opt(&b.opts)
	}
	return b
}

// Register appends h to the chain. All preds must hold for h to run.
func (b *Builder) Register(h Handler, preds ...Predicate) *Builder {
	b.entries = append(b.entries, entry{
		name:    NameOf(h),
		handler: h,
		preds:   preds,
	})
	return b
}

// RegisterFunc appends a named function handler to the chain.
func (b *Builder) RegisterFunc(name string, fn func(c *Context, upd update.Update) Result, preds ...Predicate) *Builder {
	return b.Register(Func(name, fn), preds...)
}

// Build freezes the chain. Later calls to Register do not affect the returned Dispatcher.
func (b *Builder) Build() *Dispatcher {
	chain := make([]entry, len(b.entries))
	copy(chain, b.entries)

	injectors := make([]Injector, len(b.opts.injectors))
	copy(injectors, b.opts.injectors)

	return &Dispatcher{
		chain:     chain,
		timeout:   b.opts.timeout,
		injectors: injectors,
		reporter:  b.opts.reporter,
		log:       b.log,
	}
}

// Dispatcher walks an immutable handler chain for each update. It is safe for concurrent use.
type Dispatcher struct {
	chain     []entry
	timeout   time.Duration
	injectors []Injector
	reporter  ErrorReporter
	log       *slog.Logger
}

// Len returns the number of chain entries.
func (d *Dispatcher) Len() int {
	return len(d.chain)
}

// Dispatch runs the chain for upd and reports how it finished. It never panics on handler
// failures and never returns before the handler it is waiting on either returns or times out.
func (d *Dispatcher) Dispatch(ctx context.Context, upd update.Update) Outcome {
	start := time.Now()

	ctx = logger.WithCorrelationID(ctx, logger.CorrelationIDFromContext(ctx))
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	scope := upd.Scope()
	log := d.log.With(
		slog.Int64("update_id", upd.ID),
		slog.String("scope", scope.String()),
		slog.String("kind", string(upd.Kind())),
	)

	c := NewContext(ctx, upd, log)

	outcome := Outcome{
		UpdateID:      upd.ID,
		Scope:         scope,
		Status:        StatusUnclaimed,
		CorrelationID: logger.CorrelationIDFromContext(ctx),
	}

	if err := d.inject(c); err != nil {
		outcome.Status = StatusFailed
		outcome.Handler = injectorName
		outcome.Err = err
	} else {
		d.run(c, upd, &outcome)
	}

	outcome.Duration = time.Since(start)
	metrics.RecordDispatch(string(outcome.Status), outcome.Reason, outcome.Duration)

	if outcome.Status == StatusFailed {
		d.report(ctx, outcome)
	} else {
		log.DebugContext(ctx, "update dispatched",
			slog.String("status", string(outcome.Status)),
			slog.String("handler", outcome.Handler),
			slog.String("reason", outcome.Reason),
			slog.Duration("duration", outcome.Duration),
		)
	}

	return outcome
}

// injectorName labels failures raised while injecting capabilities.
const injectorName = "injector"

func (d *Dispatcher) inject(c *Context) error {
	return safely(c, injectorName, func() {
		for _, inject := range d.injectors {
			inject(c)
		}
	})
}

func (d *Dispatcher) run(c *Context, upd update.Update, outcome *Outcome) {
	for _, e := range d.chain {
		if err := c.Err(); err != nil {
			outcome.Status = StatusFailed
			outcome.Err = apperrors.NewTimeoutError(d.timeout, err)
			return
		}

		var applies bool
		if err := safely(c, e.name, func() { applies = e.applies(upd) }); err != nil {
			outcome.Status = StatusFailed
			outcome.Handler = e.name
			outcome.Err = err
			return
		}
		if !applies {
			continue
		}

		started := time.Now()
		res := Invoke(c, e.handler, upd)
		metrics.RecordHandler(e.name, res.Signal.String(), time.Since(started))

		switch res.Signal {
		case SignalContinue:
			continue
		case SignalStop:
			outcome.Status = StatusStopped
			outcome.Handler = e.name
			outcome.Reason = StopReason(c)
			return
		default:
			outcome.Status = StatusFailed
			outcome.Handler = e.name
			outcome.Err = classify(e.name, res.Err)
			return
		}
	}
}

// classify keeps typed application errors as they are and wraps anything else as a handler error.
func classify(handler string, err error) error {
	if err == nil {
		return apperrors.NewHandlerError(handler, errors.New("error signalled without cause"))
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	return apperrors.NewHandlerError(handler, err)
}

func (d *Dispatcher) report(ctx context.Context, outcome Outcome) {
	attrs := []slog.Attr{
		slog.Int64("update_id", outcome.UpdateID),
		slog.String("scope", outcome.Scope.String()),
		slog.String("handler", outcome.Handler),
		slog.Duration("duration", outcome.Duration),
	}

	if d.reporter != nil {
		d.reporter.Handle(context.WithoutCancel(ctx), outcome.Err, attrs...)
		return
	}

	attrs = append(attrs, slog.Any("error", outcome.Err))
	d.log.LogAttrs(ctx, slog.LevelError, "dispatch failed", attrs...)
}
