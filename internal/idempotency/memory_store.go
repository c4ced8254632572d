package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/clock"
)

type memoryRecord struct {
	status    string
	expiresAt time.Time
}

// MemoryStore is a single-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord
	clock   clock.Clock
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}

	return &MemoryStore{
		records: make(map[string]memoryRecord),
		clock:   clk,
	}
}

func (s *MemoryStore) liveLocked(key string) (memoryRecord, bool) {
	rec, ok := s.records[key]
	if !ok {
		return memoryRecord{}, false
	}
	if !rec.expiresAt.IsZero() && !s.clock.Now().Before(rec.expiresAt) {
		delete(s.records, key)
		return memoryRecord{}, false
	}
	return rec, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.liveLocked(key); ok {
		return false, nil
	}
	s.records[key] = memoryRecord{status: StatusProcessing, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Status(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.liveLocked(key)
	return rec.status, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = memoryRecord{status: StatusCompleted, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}

// Sweep drops expired records.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.records {
		if _, ok := s.liveLocked(key); !ok {
			removed++
		}
	}
	return removed, nil
}
