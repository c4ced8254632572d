package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ReservedKey holds the dialogue state name inside session data.
const ReservedKey = "__dialogue_state"

// ErrReservedKey is returned when handler code writes the dialogue state key directly.
var ErrReservedKey = errors.New("session key is reserved")

// Key carries the loaded Session of the current scope in a dispatch Context.
var Key = dispatch.NewKey[*Session]("session")

// From returns the Session injected into c.
func From(c *dispatch.Context) (*Session, bool) {
	s, ok := dispatch.Get(c, Key)
	return s, ok && s != nil
}

// Session is a working copy of one scope's data. It is not safe for concurrent use; the
// dialogue machine guarantees a single writer per scope.
type Session struct {
	scope update.Scope
	data  Data
	dirty bool
}

// New wraps data as the working copy for scope.
func New(scope update.Scope, data Data) *Session {
	if data == nil {
		data = Data{}
	}
	return &Session{scope: scope, data: data.Clone()}
}

// Load reads the session of scope from store. An absent session yields an empty one.
func Load(ctx context.Context, store Store, scope update.Scope) (*Session, error) {
	data, err := store.Get(ctx, scope)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return New(scope, data), nil
}

// Scope returns the conversation key the session belongs to.
func (s *Session) Scope() update.Scope {
	return s.scope
}

// Get decodes the JSON value under key into dst. It reports false when the key is absent.
func (s *Session) Get(key string, dst any) (bool, error) {
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("decode session key %q: %w", key, err)
	}
	return true, nil
}

// Set stores v as JSON under key.
func (s *Session) Set(key string, v any) error {
	if key == ReservedKey {
		return ErrReservedKey
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode session key %q: %w", key, err)
	}

	s.data[key] = raw
	s.dirty = true
	return nil
}

// Delete removes key.
func (s *Session) Delete(key string) {
	if key == ReservedKey {
		return
	}
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.dirty = true
	}
}

// Clear removes every key except the dialogue state.
func (s *Session) Clear() {
	for key := range s.data {
		if key != ReservedKey {
			delete(s.data, key)
			s.dirty = true
		}
	}
}

// Keys returns the user-visible keys.
func (s *Session) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		if key != ReservedKey {
			keys = append(keys, key)
		}
	}
	return keys
}

// State returns the stored dialogue state name.
func (s *Session) State() (string, bool) {
	raw, ok := s.data[ReservedKey]
	if !ok {
		return "", false
	}
	return string(raw), true
}

// SetState records the dialogue state name.
func (s *Session) SetState(name string) {
	if current, ok := s.State(); ok && current == name {
		return
	}
	s.data[ReservedKey] = []byte(name)
	s.dirty = true
}

// ClearState drops the dialogue state name.
func (s *Session) ClearState() {
	if _, ok := s.data[ReservedKey]; ok {
		delete(s.data, ReservedKey)
		s.dirty = true
	}
}

// Empty reports whether the session holds no data at all, dialogue state included.
func (s *Session) Empty() bool {
	return len(s.data) == 0
}

// Dirty reports whether the working copy changed since it was loaded.
func (s *Session) Dirty() bool {
	return s.dirty
}

// Data returns a copy of the working data.
func (s *Session) Data() Data {
	return s.data.Clone()
}

// Save writes the working copy in a single Set, or removes the session when it became empty.
func (s *Session) Save(ctx context.Context, store Store, ttl time.Duration) error {
	if len(s.data) == 0 {
		if err := store.Remove(ctx, s.scope); err != nil {
			return err
		}
	} else if err := store.Set(ctx, s.scope, s.data, ttl); err != nil {
		return err
	}

	s.dirty = false
	return nil
}
