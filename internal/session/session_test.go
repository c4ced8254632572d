package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestSession_TypedValues(t *testing.T) {
	s := New(scopeA, nil)

	require.NoError(t, s.Set("profile", profile{Name: "Alice", Age: 30}))
	assert.True(t, s.Dirty())

	var got profile
	ok, err := s.Get("profile", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, profile{Name: "Alice", Age: 30}, got)

	ok, err = s.Get("missing", &got)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_DecodeErrorReportsKey(t *testing.T) {
	s := New(scopeA, Data{"age": []byte(`"not a number"`)})

	var age int
	ok, err := s.Get("age", &age)
	assert.True(t, ok)
	assert.ErrorContains(t, err, `"age"`)
}

func TestSession_ReservedKeyIsProtected(t *testing.T) {
	s := New(scopeA, nil)
	s.SetState("awaiting_name")

	assert.ErrorIs(t, s.Set(ReservedKey, "x"), ErrReservedKey)
	s.Delete(ReservedKey)
	s.Clear()

	state, ok := s.State()
	assert.True(t, ok)
	assert.Equal(t, "awaiting_name", state)
	assert.Empty(t, s.Keys())
}

func TestSession_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	s, err := Load(ctx, store, scopeA)
	require.NoError(t, err)
	require.NoError(t, s.Set("name", "Alice"))
	s.SetState("done")
	require.NoError(t, s.Save(ctx, store, time.Hour))
	assert.False(t, s.Dirty())

	loaded, err := Load(ctx, store, scopeA)
	require.NoError(t, err)

	var name string
	_, err = loaded.Get("name", &name)
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	state, _ := loaded.State()
	assert.Equal(t, "done", state)
}

func TestSession_SaveEmptyRemoves(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	require.NoError(t, store.Set(ctx, scopeA, Data{"k": []byte(`1`)}, Forever))

	s, err := Load(ctx, store, scopeA)
	require.NoError(t, err)
	s.Delete("k")
	require.NoError(t, s.Save(ctx, store, Forever))

	_, err = store.Get(ctx, scopeA)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_SetStateSameNameIsNoop(t *testing.T) {
	s := New(scopeA, Data{ReservedKey: []byte("idle")})
	s.SetState("idle")
	assert.False(t, s.Dirty())
}
