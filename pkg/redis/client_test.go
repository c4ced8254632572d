package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-dispatch/pkg/config"
)

func TestNew_InstrumentsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	client, err := New(ctx, config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	setBefore := testutil.ToFloat64(redisRequestsTotal.WithLabelValues("set"))
	getErrBefore := testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get"))

	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	_, err = client.Get(ctx, "missing").Result()
	require.Error(t, err)

	assert.Equal(t, setBefore+1, testutil.ToFloat64(redisRequestsTotal.WithLabelValues("set")))
	assert.Equal(t, getErrBefore, testutil.ToFloat64(redisErrorsTotal.WithLabelValues("get")))
}

func TestNew_FailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}
