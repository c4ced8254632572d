package bot

import (
	"context"
	"errors"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
)

const apiName = "telegram"

// messenger is the part of *telebot.Bot the sender needs.
type messenger interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// Sender is the dispatch.APIClient backed by the telegram bot API. Transient failures are
// retried, and a circuit breaker stops hammering the API while it is down.
type Sender struct {
	api     messenger
	breaker *apperrors.CircuitBreaker
	policy  apperrors.RetryPolicy
	log     *slog.Logger
}

var _ dispatch.APIClient = (*Sender)(nil)

func NewSender(api messenger, breaker *apperrors.CircuitBreaker, policy apperrors.RetryPolicy, log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	if breaker == nil {
		breaker = apperrors.NewCircuitBreaker(nil)
	}

	return &Sender{
		api:     api,
		breaker: breaker,
		policy:  policy,
		log:     log,
	}
}

func (s *Sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	var sendErr error

	err := s.breaker.Call(func() error {
		sendErr = apperrors.WithRetryPolicy(ctx, s.policy, func() error {
			return s.send(chatID, text)
		})
		// users blocking the bot say nothing about the API health
		if sendErr != nil && !apperrors.IsRetryable(sendErr) {
			return nil
		}
		return sendErr
	})

	switch {
	case errors.Is(err, apperrors.ErrCircuitOpen), errors.Is(err, apperrors.ErrHalfOpenTooManyRequests):
		s.log.Warn("telegram api circuit open, message dropped", slog.Int64("chat_id", chatID))
		return apperrors.NewExternalAPIError(apiName, err)
	case err != nil:
		return err
	}

	return sendErr
}

func (s *Sender) send(chatID int64, text string) error {
	if _, err := s.api.Send(telebot.ChatID(chatID), text); err != nil {
		appErr := apperrors.NewExternalAPIError(apiName, err)
		if errors.Is(err, telebot.ErrBlockedByUser) || errors.Is(err, telebot.ErrChatNotFound) {
			appErr.Retryable = false
		}
		return appErr
	}
	return nil
}
