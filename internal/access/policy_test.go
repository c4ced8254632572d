package access

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPolicy_FirstMatchWins(t *testing.T) {
	policy := NewPolicy(Deny,
		Rule{Matcher: UserID(42), Decision: Deny},
		Rule{Matcher: Any(), Decision: Allow},
	)

	assert.Equal(t, Deny, policy.Evaluate(Principal{UserID: 42}))
	assert.Equal(t, Allow, policy.Evaluate(Principal{UserID: 7}))
}

func TestPolicy_EmptyUsesDefault(t *testing.T) {
	assert.Equal(t, Allow, NewPolicy(Allow).Evaluate(Principal{UserID: 1}))
	assert.Equal(t, Deny, NewPolicy(Deny).Evaluate(Principal{UserID: 1}))

	var nilPolicy *Policy
	assert.Equal(t, Allow, nilPolicy.Evaluate(Principal{}))
}

func TestMatchers(t *testing.T) {
	p := Principal{UserID: 1, ChatID: -100, Username: "Alice"}

	tests := []struct {
		name    string
		matcher Matcher
		want    bool
	}{
		{"user id", UserID(1), true},
		{"other user id", UserID(2), false},
		{"chat id", ChatID(-100), true},
		{"username ignores case and at sign", Username("@alice"), true},
		{"other username", Username("bob"), false},
		{"any", Any(), true},
		{"custom", Custom("negative chat", func(p Principal) bool { return p.ChatID < 0 }), true},
		{"nil custom", Custom("broken", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.matcher.Match(p))
		})
	}

	assert.False(t, Username("alice").Match(Principal{UserID: 1}))
}

func TestPolicy_Explain(t *testing.T) {
	policy := NewPolicy(Allow,
		Rule{Matcher: ChatID(5), Decision: Deny},
		Rule{Matcher: UserID(9), Decision: Deny},
	)

	_, idx := policy.Explain(Principal{UserID: 9})
	assert.Equal(t, 1, idx)

	_, idx = policy.Explain(Principal{UserID: 1})
	assert.Equal(t, -1, idx)
}

func TestFromConfig(t *testing.T) {
	policy, err := FromConfig(config.AccessConfig{
		Default: "deny",
		Rules: []config.AccessRuleConfig{
			{Username: "@Admin", Decision: "allow"},
			{ChatID: -100500, Decision: "allow"},
		},
	}, Rule{Matcher: UserID(3), Decision: Allow})
	require.NoError(t, err)

	assert.Equal(t, Allow, policy.Evaluate(Principal{Username: "admin"}))
	assert.Equal(t, Allow, policy.Evaluate(Principal{ChatID: -100500}))
	assert.Equal(t, Allow, policy.Evaluate(Principal{UserID: 3}))
	assert.Equal(t, Deny, policy.Evaluate(Principal{UserID: 4}))
	assert.Len(t, policy.Rules(), 3)
}

func TestFromConfig_Errors(t *testing.T) {
	_, err := FromConfig(config.AccessConfig{Default: "maybe"})
	assert.Error(t, err)

	_, err = FromConfig(config.AccessConfig{Rules: []config.AccessRuleConfig{{UserID: 1, ChatID: 2, Decision: "deny"}}})
	assert.Error(t, err)

	_, err = FromConfig(config.AccessConfig{Rules: []config.AccessRuleConfig{{UserID: 1, Decision: "block"}}})
	assert.Error(t, err)
}

func TestFromConfig_RuleWithoutMatcherMatchesAny(t *testing.T) {
	policy, err := FromConfig(config.AccessConfig{
		Default: "allow",
		Rules:   []config.AccessRuleConfig{{Decision: "deny"}},
	})
	require.NoError(t, err)

	assert.Equal(t, Deny, policy.Evaluate(Principal{UserID: 1}))
}

func TestHolder_SwapIsVisible(t *testing.T) {
	h := NewHolder(NewPolicy(Allow))
	assert.Equal(t, Allow, h.Load().Evaluate(Principal{UserID: 1}))

	h.Store(NewPolicy(Deny))
	assert.Equal(t, Deny, h.Load().Evaluate(Principal{UserID: 1}))

	h.Store(nil)
	assert.Equal(t, Allow, h.Load().Evaluate(Principal{UserID: 1}))
}

func TestGuard_DenyStopsWithReasonAndHook(t *testing.T) {
	policies := NewHolder(NewPolicy(Allow,
		Rule{Matcher: UserID(42), Decision: Deny},
		Rule{Matcher: Any(), Decision: Allow},
	))

	var (
		mu     sync.Mutex
		denied []int64
	)
	guard := NewGuard(policies, func(c *dispatch.Context, upd update.Update) {
		mu.Lock()
		denied = append(denied, upd.UserID)
		mu.Unlock()
	})

	d := dispatch.NewBuilder(testLogger()).
		Register(guard).
		RegisterFunc("echo", func(c *dispatch.Context, upd update.Update) dispatch.Result { return dispatch.Stop() }).
		Build()

	blocked := d.Dispatch(context.Background(), update.New(1, 42, 42, "", update.Message{Text: "hi"}))
	assert.Equal(t, dispatch.StatusStopped, blocked.Status)
	assert.Equal(t, "access", blocked.Handler)
	assert.Equal(t, ReasonDenied, blocked.Reason)

	allowed := d.Dispatch(context.Background(), update.New(2, 7, 7, "", update.Message{Text: "hi"}))
	assert.Equal(t, "echo", allowed.Handler)
	assert.Empty(t, allowed.Reason)

	assert.Equal(t, []int64{42}, denied)
}

func TestRuleRow_ToRule(t *testing.T) {
	row := ruleRow{Position: 1, Decision: "deny"}
	row.Username.String, row.Username.Valid = "spammer", true

	rule, err := row.toRule()
	require.NoError(t, err)
	assert.Equal(t, "deny username:spammer", rule.String())

	_, err = ruleRow{Decision: "nope"}.toRule()
	assert.Error(t, err)
}
