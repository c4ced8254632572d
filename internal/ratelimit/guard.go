package ratelimit

import (
	"log/slog"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ReasonLimited is the stop reason reported when a bucket is empty.
const ReasonLimited = "rate_limited"

// KeyFunc selects the bucket an update is charged to.
type KeyFunc func(upd update.Update) string

// ScopeKey charges the conversation scope. It is the default.
func ScopeKey(upd update.Update) string {
	return upd.Scope().String()
}

// UserKey charges the sender across all chats.
func UserKey(upd update.Update) string {
	return "user:" + update.Scope{ChatID: upd.UserID, UserID: upd.UserID}.String()
}

// LimitedFunc is called when an update is throttled, e.g. to tell the user to slow down.
type LimitedFunc func(c *dispatch.Context, upd update.Update, res Result)

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithKeyFunc replaces the default scope key.
func WithKeyFunc(fn KeyFunc) GuardOption {
	return func(g *Guard) {
		if fn != nil {
			g.key = fn
		}
	}
}

// WithRules lets whitelisted users bypass the limiter.
func WithRules(rules *Rules) GuardOption {
	return func(g *Guard) {
		g.rules = rules
	}
}

// OnLimited registers a hook for throttled updates.
func OnLimited(fn LimitedFunc) GuardOption {
	return func(g *Guard) {
		g.onLimited = fn
	}
}

// Guard is the chain entry enforcing the limiter. A throttled update stops the chain; a failing
// backend lets the update through.
type Guard struct {
	limiter   Limiter
	rules     *Rules
	key       KeyFunc
	onLimited LimitedFunc
	log       *slog.Logger
}

// NewGuard builds the rate-limit chain entry.
func NewGuard(limiter Limiter, log *slog.Logger, opts ...GuardOption) *Guard {
	if log == nil {
		log = slog.Default()
	}

	g := &Guard{
		limiter: limiter,
		key:     ScopeKey,
		log:     log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Name() string { return "rate_limit" }

func (g *Guard) Handle(c *dispatch.Context, upd update.Update) dispatch.Result {
	if g.limiter == nil || g.rules.IsWhitelisted(upd.UserID) {
		return dispatch.Continue()
	}

	key := g.key(upd)
	res, err := g.limiter.Check(c, key)
	if err != nil {
		c.Logger().Warn("rate limiter error, letting update through", slog.String("key", key), slog.Any("error", err))
		return dispatch.Continue()
	}

	if res.Allowed {
		return dispatch.Continue()
	}

	c.Logger().Info("rate limit exceeded",
		slog.String("key", key),
		slog.Duration("retry_after", res.RetryAfter),
	)
	dispatch.SetStopReason(c, ReasonLimited)
	if g.onLimited != nil {
		g.onLimited(c, upd, res)
	}

	return dispatch.Stop()
}
