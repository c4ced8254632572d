package handlers

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/dialogue"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// NewStartHandler restarts onboarding: it drops any dialogue in progress and lets the update
// through to the dialogue entry, which now resolves the initial state.
func NewStartHandler(machine *dialogue.Machine) dispatch.Handler {
	return dispatch.Func("start", func(c *dispatch.Context, upd update.Update) dispatch.Result {
		if err := machine.Reset(c, upd.Scope()); err != nil {
			c.Logger().Error("failed to reset dialogue on start", slog.Any("error", err))
			return dispatch.Fail(err)
		}
		return dispatch.Continue()
	})
}
