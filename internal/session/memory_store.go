package session

import (
	"context"
	"sync"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

type memoryItem struct {
	data      Data
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped lazily on read and
// in bulk by Sweep.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[update.Scope]memoryItem
	clock clock.Clock
}

// NewMemoryStore creates an empty MemoryStore. A nil clock uses wall time.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}

	return &MemoryStore{
		items: make(map[update.Scope]memoryItem),
		clock: clk,
	}
}

func (s *MemoryStore) Get(_ context.Context, scope update.Scope) (Data, error) {
	s.mu.RLock()
	item, ok := s.items[scope]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if item.expired(s.clock.Now()) {
		s.mu.Lock()
		if current, ok := s.items[scope]; ok && current.expired(s.clock.Now()) {
			delete(s.items, scope)
		}
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	return item.data.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, scope update.Scope, data Data, ttl time.Duration) error {
	item := memoryItem{data: data.Clone()}
	if item.data == nil {
		item.data = Data{}
	}
	if ttl > 0 {
		item.expiresAt = s.clock.Now().Add(ttl)
	}

	s.mu.Lock()
	s.items[scope] = item
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Remove(_ context.Context, scope update.Scope) error {
	s.mu.Lock()
	delete(s.items, scope)
	s.mu.Unlock()

	return nil
}

// Range calls fn for every live session. fn must not call back into the store.
func (s *MemoryStore) Range(ctx context.Context, fn func(scope update.Scope, data Data) error) error {
	now := s.clock.Now()

	s.mu.RLock()
	snapshot := make(map[update.Scope]Data, len(s.items))
	for scope, item := range s.items {
		if !item.expired(now) {
			snapshot[scope] = item.data.Clone()
		}
	}
	s.mu.RUnlock()

	for scope, data := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scope, data); err != nil {
			return err
		}
	}

	return nil
}

// Sweep drops every expired session and returns how many were removed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for scope, item := range s.items {
		if item.expired(now) {
			delete(s.items, scope)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of stored sessions, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
