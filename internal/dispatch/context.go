package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ErrNoAPIClient is returned by Reply when no APIClient was injected into the Context.
var ErrNoAPIClient = errors.New("no api client in dispatch context")

// Key is a typed slot in a Context. Keys compare by identity, so two keys with the same name never collide.
type Key[T any] struct {
	name string
}

// NewKey allocates a new typed key.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

func (k *Key[T]) String() string {
	return k.name
}

// Context is the per-dispatch bag shared by the handlers of one chain execution.
// It also carries the deadline and cancellation of that execution.
type Context struct {
	context.Context

	mu     sync.Mutex
	values map[any]any
	update update.Update
	log    *slog.Logger
}

// NewContext builds a Context for upd. The dispatcher creates one per update; handlers
// invoked outside a dispatcher (tests, adapters) may create their own.
func NewContext(parent context.Context, upd update.Update, log *slog.Logger) *Context {
	if parent == nil {
		parent = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Context{
		Context: parent,
		values:  make(map[any]any),
		update:  upd,
		log:     log,
	}
}

// Update returns the update being dispatched.
func (c *Context) Update() update.Update {
	return c.update
}

// Logger returns a logger annotated with the update identity.
func (c *Context) Logger() *slog.Logger {
	return c.log
}

// Set stores v under k, replacing any previous value.
func Set[T any](c *Context, k *Key[T], v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[k] = v
}

// Get returns the value stored under k.
func Get[T any](c *Context, k *Key[T]) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.values[k].(T)
	return v, ok
}

// Delete removes the value stored under k.
func Delete[T any](c *Context, k *Key[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, k)
}

// Injector prepares a fresh Context before the chain runs, typically by providing capabilities.
type Injector func(c *Context)

// Provide returns an Injector storing v under k in every Context.
func Provide[T any](k *Key[T], v T) Injector {
	return func(c *Context) {
		Set(c, k, v)
	}
}

var stopReasonKey = NewKey[string]("stop_reason")

// SetStopReason records why the chain is about to stop; it is reported in Outcome.Reason.
func SetStopReason(c *Context, reason string) {
	Set(c, stopReasonKey, reason)
}

// StopReason returns the reason recorded by SetStopReason.
func StopReason(c *Context) string {
	reason, _ := Get(c, stopReasonKey)
	return reason
}

// APIClient is the outbound capability handlers use to act on the messaging platform.
type APIClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// APIKey holds the injected APIClient.
var APIKey = NewKey[APIClient]("api_client")

// API returns the injected APIClient.
func API(c *Context) (APIClient, bool) {
	return Get(c, APIKey)
}

// Reply sends text to the chat of the update being dispatched.
func Reply(c *Context, text string) error {
	api, ok := API(c)
	if !ok || api == nil {
		return ErrNoAPIClient
	}

	return api.SendMessage(c, c.update.ChatID, text)
}
