package bot

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/access"
	"github.com/Proton-105/himera-dispatch/internal/bot/handlers"
	"github.com/Proton-105/himera-dispatch/internal/dialogue"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/middleware"
	"github.com/Proton-105/himera-dispatch/internal/ratelimit"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ChainDeps are the entries of the bot chain. Dedup and RateLimit may be nil.
type ChainDeps struct {
	Dedup     *middleware.Dedup
	Access    *access.Guard
	RateLimit *ratelimit.Guard
	Machine   *dialogue.Machine
	Sessions  session.Store
}

// NewChain assembles the handler chain: cheap guards first, then commands, then the dialogue,
// and a fallback for text nobody claimed.
func NewChain(log *slog.Logger, deps ChainDeps, opts ...dispatch.Option) *dispatch.Dispatcher {
	b := dispatch.NewBuilder(log, opts...)

	if deps.Dedup != nil {
		b.Register(deps.Dedup)
	}
	if deps.Access != nil {
		b.Register(deps.Access)
	}
	if deps.RateLimit != nil {
		b.Register(deps.RateLimit)
	}

	b.Register(handlers.NewCancelHandler(deps.Machine), dispatch.OnCommand(CommandCancel))
	b.Register(handlers.NewStartHandler(deps.Machine), dispatch.OnCommand(CommandStart))
	b.Register(handlers.NewProfileHandler(deps.Sessions), dispatch.OnCommand(CommandProfile))
	b.Register(handlers.NewHelpHandler(), dispatch.OnCommand(CommandHelp))
	b.Register(deps.Machine, dispatch.OnKind(update.KindMessage, update.KindCallback))
	b.Register(handlers.NewFallbackHandler(), dispatch.OnKind(update.KindMessage), dispatch.OnText())

	return b.Build()
}
