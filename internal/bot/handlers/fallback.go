package handlers

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/ratelimit"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// NewHelpHandler lists the commands.
func NewHelpHandler() dispatch.Handler {
	return dispatch.Func("help", func(c *dispatch.Context, _ update.Update) dispatch.Result {
		return dispatch.FromError(dispatch.Reply(c, tr(c).T("help.text")))
	})
}

// NewFallbackHandler answers text nothing else claimed.
func NewFallbackHandler() dispatch.Handler {
	return dispatch.Func("fallback", func(c *dispatch.Context, _ update.Update) dispatch.Result {
		return dispatch.FromError(dispatch.Reply(c, tr(c).T("fallback.text")))
	})
}

// NotifyDenied tells a denied user why nothing happens. Send failures are only logged.
func NotifyDenied(c *dispatch.Context, _ update.Update) {
	if err := dispatch.Reply(c, tr(c).T("access.denied")); err != nil {
		c.Logger().Debug("failed to notify denied user", slog.Any("error", err))
	}
}

// NotifyLimited asks a throttled user to slow down.
func NotifyLimited(c *dispatch.Context, _ update.Update, res ratelimit.Result) {
	seconds := int(res.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	if err := dispatch.Reply(c, tr(c).Tf("ratelimit.limited", seconds)); err != nil {
		c.Logger().Debug("failed to notify throttled user", slog.Any("error", err))
	}
}
