package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load session: %w", NewSessionBackendError("get", cause))

	assert.ErrorIs(t, err, ErrSessionBackend)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Equal(t, CodeSessionBackend, Code(err))
}

func TestCode_PlainError(t *testing.T) {
	assert.Empty(t, Code(errors.New("plain")))
	assert.Empty(t, Code(nil))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *AppError
		sentinel  error
		retryable bool
	}{
		{"handler", NewHandlerError("echo", errors.New("x")), ErrHandler, false},
		{"session backend", NewSessionBackendError("set", errors.New("x")), ErrSessionBackend, true},
		{"rate limiter config", NewRateLimiterConfigError("capacity must be positive"), ErrRateLimiterConfig, false},
		{"unknown state", NewUnknownStateError("ghost"), ErrUnknownDialogueState, false},
		{"invalid transition", NewInvalidTransitionError("idle", "done"), ErrInvalidTransition, false},
		{"timeout", NewTimeoutError(time.Second, nil), ErrTimeout, true},
		{"panic", NewPanicError("boom"), ErrPanic, false},
		{"external api", NewExternalAPIError("telegram", errors.New("x")), ErrExternalAPI, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestNewPanicError_IncludesValue(t *testing.T) {
	assert.Contains(t, NewPanicError("kaboom").Error(), "kaboom")
}
