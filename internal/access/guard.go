package access

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
)

// ReasonDenied is the stop reason reported for denied updates.
const ReasonDenied = "access_denied"

// DenyFunc is called for every denied update. Whether the user is told anything is up to it.
type DenyFunc func(c *dispatch.Context, upd update.Update)

// Guard is the chain entry enforcing the current policy.
type Guard struct {
	policies *Holder
	onDeny   DenyFunc
}

// NewGuard builds the access chain entry. onDeny may be nil.
func NewGuard(policies *Holder, onDeny DenyFunc) *Guard {
	return &Guard{policies: policies, onDeny: onDeny}
}

func (g *Guard) Name() string { return "access" }

func (g *Guard) Handle(c *dispatch.Context, upd update.Update) dispatch.Result {
	policy := g.policies.Load()
	decision, rule := policy.Explain(PrincipalOf(upd))
	metrics.RecordAccessDecision(decision.String())

	if decision == Allow {
		return dispatch.Continue()
	}

	c.Logger().Info("update denied by access policy", slog.Int("rule", rule))
	dispatch.SetStopReason(c, ReasonDenied)
	if g.onDeny != nil {
		g.onDeny(c, upd)
	}

	return dispatch.Stop()
}
