// Package logger builds the structured slog logger shared by every component.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

// New creates a logger writing to stdout and, when configured, to a rotated file.
// Error records are additionally forwarded to Sentry when it is enabled.
func New(cfg config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if file := strings.TrimSpace(cfg.Logger.File); file != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    orDefault(cfg.Logger.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.Logger.MaxBackups, 5),
			MaxAge:     orDefault(cfg.Logger.MaxAgeDays, 14),
			Compress:   true,
		})
	}

	var extra []slog.Handler
	if cfg.Sentry.Enabled {
		extra = append(extra, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
	}

	env := cfg.AppEnv
	if env == "" {
		env = "development"
	}

	return slog.New(newHandler(cfg.Logger, out, extra...)).With(slog.String("env", env))
}

// newHandler formats records to out and fans them out to extra sinks. Masking and
// correlation ids apply before the fan-out, so every sink sees the same record.
func newHandler(cfg config.LoggerConfig, out io.Writer, extra ...slog.Handler) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(extra) > 0 {
		handler = slogmulti.Fanout(append([]slog.Handler{handler}, extra...)...)
	}

	return NewCorrelationHandler(NewMaskingHandler(handler))
}

// InitSentry configures the global Sentry client and returns a flush function for shutdown.
func InitSentry(cfg config.Config) (func(), error) {
	if !cfg.Sentry.Enabled {
		return func() {}, nil
	}

	environment := cfg.Sentry.Environment
	if environment == "" {
		environment = cfg.AppEnv
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: environment,
		SampleRate:  cfg.Sentry.SampleRate,
	}); err != nil {
		return func() {}, fmt.Errorf("init sentry: %w", err)
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
