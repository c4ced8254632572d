package handlers

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/dialogue"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// NewCancelHandler leaves the current dialogue and tells the user.
func NewCancelHandler(machine *dialogue.Machine) dispatch.Handler {
	return dispatch.Func("cancel", func(c *dispatch.Context, upd update.Update) dispatch.Result {
		if err := machine.Reset(c, upd.Scope()); err != nil {
			c.Logger().Error("failed to clear dialogue state", slog.Any("error", err))
			return dispatch.Fail(err)
		}

		return dispatch.FromError(dispatch.Reply(c, tr(c).T("cancel.done")))
	})
}
