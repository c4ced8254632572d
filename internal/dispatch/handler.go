// Package dispatch routes updates through an ordered chain of handlers.
package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
)

// Signal tells the dispatcher how to continue after a handler returns.
type Signal int

const (
	SignalContinue Signal = iota
	SignalStop
	SignalError
)

func (s Signal) String() string {
	switch s {
	case SignalContinue:
		return "continue"
	case SignalStop:
		return "stop"
	case SignalError:
		return "error"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Result is the value every handler returns.
type Result struct {
	Signal Signal
	Err    error
}

// Continue passes the update to the next handler.
func Continue() Result { return Result{Signal: SignalContinue} }

// Stop ends the chain successfully.
func Stop() Result { return Result{Signal: SignalStop} }

// Fail ends the chain with err as the cause.
func Fail(err error) Result { return Result{Signal: SignalError, Err: err} }

// FromError maps a plain error return onto a Result: nil stops, anything else fails.
func FromError(err error) Result {
	if err != nil {
		return Fail(err)
	}
	return Stop()
}

// Handler is one participant of the chain.
type Handler interface {
	Handle(c *Context, upd update.Update) Result
}

// HandlerFunc adapts ordinary functions to the Handler interface.
type HandlerFunc func(c *Context, upd update.Update) Result

// Handle executes the underlying function.
func (f HandlerFunc) Handle(c *Context, upd update.Update) Result {
	return f(c, upd)
}

// Named is implemented by handlers that report a stable name for logs and metrics.
type Named interface {
	Name() string
}

type namedHandler struct {
	name string
	Handler
}

func (n namedHandler) Name() string { return n.name }

// WithName attaches a name to h.
func WithName(name string, h Handler) Handler {
	return namedHandler{name: name, Handler: h}
}

// Func is shorthand for WithName(name, HandlerFunc(fn)).
func Func(name string, fn func(c *Context, upd update.Update) Result) Handler {
	return WithName(name, HandlerFunc(fn))
}

// NameOf returns the reported name of h.
func NameOf(h Handler) string {
	if n, ok := h.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", h), "*")
}

// Invoke runs h on its own goroutine, converting a panic into a PanicError result.
// When c is done before h returns, Invoke returns a TimeoutError right away and the
// late result of h is discarded.
func Invoke(c *Context, h Handler, upd update.Update) Result {
	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				name := NameOf(h)
				c.Logger().Error("panic recovered in handler",
					slog.String("handler", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				metrics.RecordPanic(name)
				done <- Fail(apperrors.NewPanicError(r))
			}
		}()

		done <- h.Handle(c, upd)
	}()

	select {
	case res := <-done:
		return res
	case <-c.Done():
		return Fail(apperrors.NewTimeoutError(time.Since(start), c.Err()))
	}
}

// safely runs fn on the dispatching goroutine and turns a panic into a PanicError
// attributed to name. Predicates and injectors go through it.
func safely(c *Context, name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.Logger().Error("panic recovered in dispatch",
				slog.String("handler", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			metrics.RecordPanic(name)
			err = apperrors.NewPanicError(r)
		}
	}()

	fn()
	return nil
}
