// Package dialogue runs multi-step conversations as a per-scope state machine whose current
// state lives in the scope's session.
package dialogue

import (
	"fmt"
	"sort"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// Table maps state names to handlers. It is configured once before the Machine is built.
type Table struct {
	initial  string
	handlers map[string]dispatch.Handler
	allowed  map[string]map[string]struct{}
}

// NewTable creates a table whose absent state resolves to initial.
func NewTable(initial string) *Table {
	return &Table{
		initial:  initial,
		handlers: make(map[string]dispatch.Handler),
		allowed:  make(map[string]map[string]struct{}),
	}
}

// Add registers the handler of a state, replacing any previous one.
func (t *Table) Add(name string, h dispatch.Handler) *Table {
	t.handlers[name] = h
	return t
}

// AddFunc registers a function handler of a state.
func (t *Table) AddFunc(name string, fn func(c *dispatch.Context, upd update.Update) dispatch.Result) *Table {
	return t.Add(name, dispatch.Func("dialogue:"+name, fn))
}

// Allow restricts the states reachable from "from". States without an Allow entry may move
// anywhere. Returning to the initial state is always allowed.
func (t *Table) Allow(from string, to ...string) *Table {
	set, ok := t.allowed[from]
	if !ok {
		set = make(map[string]struct{}, len(to))
		t.allowed[from] = set
	}
	for _, name := range to {
		set[name] = struct{}{}
	}
	return t
}

// Initial returns the name of the initial state.
func (t *Table) Initial() string {
	return t.initial
}

// Has reports whether name is a registered state.
func (t *Table) Has(name string) bool {
	_, ok := t.handlers[name]
	return ok
}

// States returns the registered state names in sorted order.
func (t *Table) States() []string {
	names := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the initial state and every state named in the transition graph exist.
func (t *Table) Validate() error {
	if !t.Has(t.initial) {
		return fmt.Errorf("initial dialogue state %q has no handler", t.initial)
	}

	for from, targets := range t.allowed {
		if !t.Has(from) {
			return fmt.Errorf("transition source %q has no handler", from)
		}
		for to := range targets {
			if !t.Has(to) {
				return fmt.Errorf("transition target %q has no handler", to)
			}
		}
	}

	return nil
}

func (t *Table) canMove(from, to string) bool {
	if from == to || to == t.initial {
		return true
	}

	targets, restricted := t.allowed[from]
	if !restricted {
		return true
	}

	_, ok := targets[to]
	return ok
}
