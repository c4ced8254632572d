package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
)

// ReasonBusy is the stop reason when a rejecting locker finds the scope already in use.
const ReasonBusy = "dialogue_busy"

// Observer is notified after a state change has been persisted.
type Observer func(scope update.Scope, from, to string)

// Option customizes a Machine.
type Option func(*Machine)

// WithTTL sets the session lifetime. Every touch of an existing session refreshes it.
func WithTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.ttl = ttl
	}
}

// WithObserver adds a transition observer.
func WithObserver(fn Observer) Option {
	return func(m *Machine) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// Machine is the chain entry that resolves the scope's dialogue state and runs its handler.
// Work on one scope is serialized by the locker; the new state and session data are written in
// a single store call, and only when the handler did not fail.
type Machine struct {
	table     *Table
	store     session.Store
	locker    session.Locker
	ttl       time.Duration
	observers []Observer
	log       *slog.Logger
}

// NewMachine validates table and builds the dialogue entry.
func NewMachine(table *Table, store session.Store, locker session.Locker, log *slog.Logger, opts ...Option) (*Machine, error) {
	if table == nil || store == nil || locker == nil {
		return nil, errors.New("dialogue machine needs a table, a session store and a locker")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	m := &Machine{
		table:  table,
		store:  store,
		locker: locker,
		log:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Machine) Name() string { return "dialogue" }

func (m *Machine) Handle(c *dispatch.Context, upd update.Update) dispatch.Result {
	scope := upd.Scope()
	start := time.Now()

	unlock, err := m.locker.Lock(c, scope)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrLocked):
			c.Logger().Info("dialogue scope busy, dropping update")
			dispatch.SetStopReason(c, ReasonBusy)
			return dispatch.Stop()
		case c.Err() != nil:
			return dispatch.Fail(apperrors.NewTimeoutError(time.Since(start), c.Err()))
		default:
			return dispatch.Fail(err)
		}
	}
	defer unlock()

	sess, err := session.Load(c, m.store, scope)
	if err != nil {
		return dispatch.Fail(err)
	}

	stored, hasState := sess.State()
	current := stored
	if !hasState {
		current = m.table.initial
	}

	handler, ok := m.table.handlers[current]
	if !ok {
		c.Logger().Error("stored dialogue state is not registered", slog.String("state", current))
		return dispatch.Fail(apperrors.NewUnknownStateError(current))
	}

	dispatch.Set(c, session.Key, sess)
	dispatch.Set(c, currentKey, current)
	dispatch.Delete(c, requestKey)

	res := dispatch.Invoke(c, handler, upd)
	if res.Signal == dispatch.SignalError {
		return res
	}
	if err := c.Err(); err != nil {
		return dispatch.Fail(apperrors.NewTimeoutError(time.Since(start), err))
	}

	next, err := m.resolveNext(c, current)
	if err != nil {
		return dispatch.Fail(err)
	}

	switch {
	case next == "":
		sess.ClearState()
		next = m.table.initial
	case next != current || hasState:
		sess.SetState(next)
	}

	if sess.Dirty() || (m.ttl > 0 && !sess.Empty()) {
		if err := sess.Save(c, m.store, m.ttl); err != nil {
			c.Logger().Error("failed to persist dialogue session", slog.Any("error", err))
			return dispatch.Fail(err)
		}
	}

	if next != current {
		m.notify(c, scope, current, next)
	}

	// Memory and file stores ignore ctx, so the deadline can pass while the write lands.
	// The update still counts as timed out, but its transition is already stored.
	if err := c.Err(); err != nil {
		c.Logger().Warn("dialogue state persisted after the update deadline",
			slog.String("from", current),
			slog.String("to", next),
		)
		return dispatch.Fail(apperrors.NewTimeoutError(time.Since(start), err))
	}

	return res
}

// resolveNext returns the state to persist, or "" when the handler asked to exit.
func (m *Machine) resolveNext(c *dispatch.Context, current string) (string, error) {
	req, ok := dispatch.Get(c, requestKey)
	if !ok {
		return current, nil
	}
	if req.exit {
		return "", nil
	}

	if !m.table.Has(req.to) {
		return "", apperrors.NewUnknownStateError(req.to)
	}
	if !m.table.canMove(current, req.to) {
		c.Logger().Warn("invalid dialogue transition", slog.String("from", current), slog.String("to", req.to))
		return "", apperrors.NewInvalidTransitionError(current, req.to)
	}

	return req.to, nil
}

func (m *Machine) notify(c *dispatch.Context, scope update.Scope, from, to string) {
	c.Logger().Debug("dialogue state changed", slog.String("from", from), slog.String("to", to))
	metrics.RecordStateTransition(from, to)
	for _, observe := range m.observers {
		observe(scope, from, to)
	}
}

// State returns the persisted state of scope, resolving an absent state to the initial one.
func (m *Machine) State(ctx context.Context, scope update.Scope) (string, error) {
	sess, err := session.Load(ctx, m.store, scope)
	if err != nil {
		return "", err
	}
	if name, ok := sess.State(); ok {
		return name, nil
	}
	return m.table.initial, nil
}

// Reset drops the dialogue state of scope while keeping its other session data.
func (m *Machine) Reset(ctx context.Context, scope update.Scope) error {
	unlock, err := m.locker.Lock(ctx, scope)
	if err != nil {
		return err
	}
	defer unlock()

	sess, err := session.Load(ctx, m.store, scope)
	if err != nil {
		return err
	}

	from, had := sess.State()
	sess.ClearState()
	if !sess.Dirty() {
		return nil
	}

	if err := sess.Save(ctx, m.store, m.ttl); err != nil {
		return err
	}
	if had && from != m.table.initial {
		metrics.RecordStateTransition(from, m.table.initial)
	}
	return nil
}

// CountStates reports how many live sessions sit in each state. The store must implement
// session.Ranger.
func (m *Machine) CountStates(ctx context.Context) (map[string]int, error) {
	ranger, ok := m.store.(session.Ranger)
	if !ok {
		return nil, fmt.Errorf("session store %T cannot enumerate sessions", m.store)
	}

	counts := make(map[string]int)
	err := ranger.Range(ctx, func(_ update.Scope, data session.Data) error {
		name := m.table.initial
		if raw, ok := data[session.ReservedKey]; ok {
			name = string(raw)
		}
		counts[name]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	return counts, nil
}
