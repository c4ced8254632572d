package dialogue

import (
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
)

type request struct {
	to   string
	exit bool
}

var (
	requestKey = dispatch.NewKey[request]("dialogue_request")
	currentKey = dispatch.NewKey[string]("dialogue_state")
)

// Transition asks the machine to move the scope to name once the current handler finishes
// without error. The last call wins.
func Transition(c *dispatch.Context, name string) {
	dispatch.Set(c, requestKey, request{to: name})
}

// Exit asks the machine to leave the dialogue: the stored state is dropped and the next update
// starts from the initial state again.
func Exit(c *dispatch.Context) {
	dispatch.Set(c, requestKey, request{exit: true})
}

// Current returns the state the running handler was resolved from.
func Current(c *dispatch.Context) (string, bool) {
	return dispatch.Get(c, currentKey)
}
