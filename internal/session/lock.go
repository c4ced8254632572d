package session

import (
	"context"
	"errors"
	"sync"

	"github.com/Proton-105/himera-dispatch/internal/update"
)

// ErrLocked is returned by a rejecting Locker when the scope is already held.
var ErrLocked = errors.New("scope is locked, try again later")

// Locker serializes work on a scope. The returned unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, scope update.Scope) (unlock func(), err error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is an in-process Locker. Waiters give up when their context is done.
type MemoryLocker struct {
	mu     sync.Mutex
	slots  map[update.Scope]*slot
	reject bool
}

// NewMemoryLocker creates a MemoryLocker. With reject set, Lock fails with ErrLocked instead of waiting.
func NewMemoryLocker(reject bool) *MemoryLocker {
	return &MemoryLocker{
		slots:  make(map[update.Scope]*slot),
		reject: reject,
	}
}

func (l *MemoryLocker) Lock(ctx context.Context, scope update.Scope) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[scope]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[scope] = s
	}
	s.refs++
	l.mu.Unlock()

	if l.reject {
		select {
		case s.ch <- struct{}{}:
			return l.releaser(scope, s), nil
		default:
			l.drop(scope, s)
			return nil, ErrLocked
		}
	}

	select {
	case s.ch <- struct{}{}:
		return l.releaser(scope, s), nil
	case <-ctx.Done():
		l.drop(scope, s)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) releaser(scope update.Scope, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.drop(scope, s)
		})
	}
}

func (l *MemoryLocker) drop(scope update.Scope, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, scope)
	}
}

// Held returns the number of scopes currently locked or awaited.
func (l *MemoryLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
