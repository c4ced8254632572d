package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
	"github.com/Proton-105/himera-dispatch/pkg/config"
)

const updatesBuffer = 100

// Submitter accepts converted updates. *dispatch.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, upd update.Update) error
}

// Bot feeds telegram updates into the dispatch runner. telebot is used only as transport: its
// own router and middleware are bypassed.
type Bot struct {
	telebot *telebot.Bot
	poller  telebot.Poller
	log     *slog.Logger
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.BotConfig, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	var poller telebot.Poller
	if cfg.Mode == "webhook" {
		webhook := &telebot.Webhook{Listen: cfg.WebhookListen}
		if cfg.WebhookURL != "" {
			webhook.Endpoint = &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL}
		}
		poller = webhook
	} else {
		poller = &telebot.LongPoller{Timeout: cfg.Timeout}
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.Token,
		Poller: poller,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	return newBot(tb, poller, log), nil
}

func newBot(tb *telebot.Bot, poller telebot.Poller, log *slog.Logger) *Bot {
	return &Bot{
		telebot: tb,
		poller:  poller,
		log:     log,
	}
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// Run polls updates and submits them until ctx is done. Dispatch work is detached from ctx so
// updates already accepted can drain after shutdown starts.
func (b *Bot) Run(ctx context.Context, sink Submitter) error {
	updates := make(chan telebot.Update, updatesBuffer)
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		b.poller.Poll(b.telebot, updates, stop)
	}()

	b.log.Info("telegram update loop started")
	dispatchCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			close(stop)
			b.drain(updates, done)
			b.log.Info("telegram update loop stopped")
			return nil

		case <-done:
			return errors.New("telegram poller exited unexpectedly")

		case raw := <-updates:
			upd, ok := FromTelebot(&raw)
			if !ok {
				b.log.Debug("unsupported telegram update skipped", slog.Int("update_id", raw.ID))
				continue
			}

			if err := sink.Submit(dispatchCtx, upd); err != nil {
				if errors.Is(err, dispatch.ErrRunnerClosed) {
					close(stop)
					b.drain(updates, done)
					return err
				}
				b.log.Warn("failed to submit update", slog.Int64("update_id", upd.ID), slog.Any("error", err))
			}
		}
	}
}

// drain unblocks a poller stuck on a full channel until it returns.
func (b *Bot) drain(updates <-chan telebot.Update, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-updates:
		}
	}
}
