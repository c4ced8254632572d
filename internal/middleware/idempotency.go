// Package middleware holds cross-cutting chain entries and the HTTP middleware of the ops server.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/idempotency"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
)

// ReasonDuplicate is the stop reason for redelivered updates.
const ReasonDuplicate = "duplicate"

const settleTimeout = 5 * time.Second

// Dedup stops updates the platform delivered more than once. It should be the first entry of
// the chain, and Settle must see every outcome so claims are completed or released.
type Dedup struct {
	tracker *idempotency.Tracker
	log     *slog.Logger
}

func NewDedup(tracker *idempotency.Tracker, log *slog.Logger) *Dedup {
	if log == nil {
		log = slog.Default()
	}

	return &Dedup{
		tracker: tracker,
		log:     log,
	}
}

func (d *Dedup) Name() string { return "dedup" }

func (d *Dedup) Handle(c *dispatch.Context, upd update.Update) dispatch.Result {
	if d.tracker == nil || upd.ID == 0 {
		return dispatch.Continue()
	}

	key := idempotency.UpdateKey(upd)
	err := d.tracker.Begin(c, key)
	switch {
	case err == nil:
		return dispatch.Continue()
	case errors.Is(err, idempotency.ErrDuplicate):
		c.Logger().Info("duplicate update dropped", slog.Int64("update_id", upd.ID))
		metrics.RecordDuplicate()
		dispatch.SetStopReason(c, ReasonDuplicate)
		return dispatch.Stop()
	default:
		c.Logger().Warn("idempotency store unavailable, processing update", slog.Any("error", err))
		return dispatch.Continue()
	}
}

// Settle completes the claim of a handled update or releases it after a failure, so a
// redelivery of a failed update gets another chance.
func (d *Dedup) Settle(outcome dispatch.Outcome) {
	if d.tracker == nil || outcome.UpdateID == 0 || outcome.Reason == ReasonDuplicate {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	key := idempotency.UpdateKeyOf(outcome.UpdateID, outcome.Scope)
	d.tracker.Finish(ctx, key, outcome.Status == dispatch.StatusFailed)
}
