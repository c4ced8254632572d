package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/config"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Check(ctx context.Context, key string) (Result, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(Result), args.Error(1)
}

func msg(chatID, userID int64) update.Update {
	return update.New(1, chatID, userID, "u", update.Message{Text: "hi"})
}

func TestGuard_StopsWhenLimited(t *testing.T) {
	limiter, err := NewMemoryLimiter(threePerSecond, clock.NewFake(time.Unix(0, 0)), testLogger())
	require.NoError(t, err)

	var limited []update.Update
	guard := NewGuard(limiter, testLogger(), OnLimited(func(c *dispatch.Context, upd update.Update, res Result) {
		limited = append(limited, upd)
	}))

	d := dispatch.NewBuilder(testLogger()).
		Register(guard).
		RegisterFunc("reply", func(c *dispatch.Context, upd update.Update) dispatch.Result { return dispatch.Stop() }).
		Build()

	var outcomes []dispatch.Outcome
	for i := 0; i < 4; i++ {
		outcomes = append(outcomes, d.Dispatch(context.Background(), msg(10, 20)))
	}

	for _, o := range outcomes[:3] {
		assert.Equal(t, "reply", o.Handler)
	}
	assert.Equal(t, "rate_limit", outcomes[3].Handler)
	assert.Equal(t, ReasonLimited, outcomes[3].Reason)
	assert.Len(t, limited, 1)

	other := d.Dispatch(context.Background(), msg(11, 20))
	assert.Equal(t, "reply", other.Handler)
}

func TestGuard_FailsOpenOnBackendError(t *testing.T) {
	limiter := &mockLimiter{}
	limiter.On("Check", mock.Anything, "10-20").Return(Result{}, errors.New("redis down"))

	guard := NewGuard(limiter, testLogger())
	c := dispatch.NewContext(context.Background(), msg(10, 20), testLogger())

	assert.Equal(t, dispatch.SignalContinue, guard.Handle(c, msg(10, 20)).Signal)
	limiter.AssertExpectations(t)
}

func TestGuard_WhitelistBypassesLimiter(t *testing.T) {
	limiter := &mockLimiter{}
	guard := NewGuard(limiter, testLogger(), WithRules(NewRules(config.RateLimitConfig{Whitelist: []int64{20}})))
	c := dispatch.NewContext(context.Background(), msg(10, 20), testLogger())

	assert.Equal(t, dispatch.SignalContinue, guard.Handle(c, msg(10, 20)).Signal)
	limiter.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestGuard_UserKey(t *testing.T) {
	limiter := &mockLimiter{}
	limiter.On("Check", mock.Anything, "user:20-20").Return(Result{Allowed: true}, nil)

	guard := NewGuard(limiter, testLogger(), WithKeyFunc(UserKey))
	c := dispatch.NewContext(context.Background(), msg(10, 20), testLogger())

	assert.Equal(t, dispatch.SignalContinue, guard.Handle(c, msg(10, 20)).Signal)
	limiter.AssertExpectations(t)
}
