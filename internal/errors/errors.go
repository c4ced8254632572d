// Package errors defines the application error taxonomy used across the dispatch core.
package errors

import (
	"errors"
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeHandler           = "E100"
	CodeSessionBackend    = "E200"
	CodeRateLimiterConfig = "E300"
	CodeUnknownState      = "E400"
	CodeInvalidTransition = "E410"
	CodeTimeout           = "E500"
	CodePanic             = "E600"
	CodeExternalAPI       = "E700"
)

// Kind sentinels. errors.Is(err, ErrTimeout) matches any AppError with the same code.
var (
	ErrHandler              = &AppError{Code: CodeHandler}
	ErrSessionBackend       = &AppError{Code: CodeSessionBackend}
	ErrRateLimiterConfig    = &AppError{Code: CodeRateLimiterConfig}
	ErrUnknownDialogueState = &AppError{Code: CodeUnknownState}
	ErrInvalidTransition    = &AppError{Code: CodeInvalidTransition}
	ErrTimeout              = &AppError{Code: CodeTimeout}
	ErrPanic                = &AppError{Code: CodePanic}
	ErrExternalAPI          = &AppError{Code: CodeExternalAPI}
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.Message == "" {
		return "application error " + e.Code
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// Is reports whether target is an AppError of the same code.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) || t == nil || e == nil {
		return false
	}

	return t.Code == e.Code
}

// Code returns the AppError code carried by err, or an empty string.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr.Code
	}

	return ""
}

func NewHandlerError(handler string, cause error) *AppError {
	if handler == "" {
		handler = "anonymous"
	}

	return &AppError{
		Code:        CodeHandler,
		Message:     fmt.Sprintf("handler %s failed: %v", handler, cause),
		UserMessage: "Произошла ошибка. Попробуйте позже",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

func NewSessionBackendError(op string, cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeSessionBackend,
		Message:     fmt.Sprintf("session backend %s: %s", op, underlyingMsg),
		UserMessage: "Временная проблема, попробуйте позже",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimiterConfigError(msg string) *AppError {
	return &AppError{
		Code:     CodeRateLimiterConfig,
		Message:  "invalid rate limiter config: " + msg,
		Severity: SeverityCritical,
	}
}

func NewUnknownStateError(state string) *AppError {
	return &AppError{
		Code:        CodeUnknownState,
		Message:     fmt.Sprintf("unknown dialogue state %q", state),
		UserMessage: "Операция невозможна в текущем состоянии",
		Severity:    SeverityHigh,
	}
}

func NewInvalidTransitionError(from, to string) *AppError {
	return &AppError{
		Code:        CodeInvalidTransition,
		Message:     fmt.Sprintf("invalid dialogue transition %q -> %q", from, to),
		UserMessage: "Операция невозможна в текущем состоянии",
		Severity:    SeverityMedium,
	}
}

func NewTimeoutError(after time.Duration, cause error) *AppError {
	return &AppError{
		Code:        CodeTimeout,
		Message:     fmt.Sprintf("dispatch aborted after %s", after.Round(time.Millisecond)),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewPanicError(recovered any) *AppError {
	return &AppError{
		Code:        CodePanic,
		Message:     fmt.Sprintf("panic recovered: %v", recovered),
		UserMessage: "⚠️ Something went wrong. Please try again later.",
		Severity:    SeverityCritical,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}
