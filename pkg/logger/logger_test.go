package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

func newBufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(NewCorrelationHandler(NewMaskingHandler(slog.NewJSONHandler(buf, nil))))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestMaskingHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	log.Info("config loaded",
		slog.String("bot_token", "123:abc"),
		slog.String("user", "alice"),
		slog.Group("redis", slog.String("password", "hunter2"), slog.String("addr", "localhost:6379")),
	)

	record := decodeRecord(t, &buf)
	assert.Equal(t, "***", record["bot_token"])
	assert.Equal(t, "alice", record["user"])

	group, ok := record["redis"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "***", group["password"])
	assert.Equal(t, "localhost:6379", group["addr"])
}

func TestMaskingHandler_MasksWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf).With(slog.String("sentry_dsn", "https://key@sentry"))

	log.Info("hello")

	assert.Equal(t, "***", decodeRecord(t, &buf)["sentry_dsn"])
}

func TestCorrelationHandler_AddsID(t *testing.T) {
	var buf bytes.Buffer
	log := newBufferLogger(&buf)

	ctx := WithCorrelationID(context.Background(), "corr-1")
	log.InfoContext(ctx, "dispatching")

	assert.Equal(t, "corr-1", decodeRecord(t, &buf)["correlation_id"])
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
}

func TestWithCorrelationID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "")
	assert.NotEmpty(t, CorrelationIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(context.Background()))
}

func TestNewHandler_FansOutToExtraSinks(t *testing.T) {
	var out, alerts bytes.Buffer
	alertSink := slog.NewJSONHandler(&alerts, &slog.HandlerOptions{Level: slog.LevelError})
	log := slog.New(newHandler(config.LoggerConfig{Level: "info", Format: "json"}, &out, alertSink))

	log.Info("update dispatched")
	log.Error("dispatch failed", slog.String("bot_token", "123:abc"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)

	record := decodeRecord(t, &alerts)
	assert.Equal(t, "dispatch failed", record["msg"])
	assert.Equal(t, "***", record["bot_token"])
}
