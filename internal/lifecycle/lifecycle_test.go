package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/internal/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_RunsHooksInOrderAndJoinsErrors(t *testing.T) {
	s := NewShutdown(testLogger())
	var order []string
	boom := errors.New("boom")

	s.Register("intake", func(context.Context) error { order = append(order, "intake"); return nil })
	s.Register("runner", func(context.Context) error { order = append(order, "runner"); return boom })
	s.Register("stores", func(context.Context) error { order = append(order, "stores"); return nil })

	err := s.Execute(context.Background())

	assert.Equal(t, []string{"intake", "runner", "stores"}, order)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "runner")

	assert.NoError(t, s.Execute(context.Background()))
	assert.Len(t, order, 3)
}

func TestProbes_Readiness(t *testing.T) {
	checker := health.NewChecker(testLogger())
	p := NewProbes(checker, testLogger())
	mux := http.NewServeMux()
	p.Mount(mux)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get("/livez"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))

	p.MarkReady()
	assert.Equal(t, http.StatusOK, get("/readyz"))

	checker.AddCheck("redis", health.CheckFunc(func(context.Context) error { return errors.New("down") }))
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz"))
	assert.Equal(t, http.StatusServiceUnavailable, get("/healthz"))

	p.MarkNotReady()
	assert.ErrorIs(t, p.Readiness(context.Background()), ErrNotReady)
}
