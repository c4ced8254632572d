package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Proton-105/himera-dispatch/internal/clock"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/update"
)

const fileSuffix = ".json"

type fileRecord struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Data      Data       `json:"data"`
}

// FileStore keeps one JSON document per scope in a directory. Writes go through a temporary
// file and a rename, so a crash never leaves a half-written session behind.
type FileStore struct {
	dir   string
	clock clock.Clock
	log   *slog.Logger

	// mu orders renames against expiry removals so a stale read never deletes a fresh write.
	mu sync.Mutex
	// beforeExpire runs between the unlocked read and the locked re-check; tests use it.
	beforeExpire func(path string)
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, clk clock.Clock, log *slog.Logger) (*FileStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.Real()
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, apperrors.NewSessionBackendError("init", err)
	}

	return &FileStore{
		dir:   dir,
		clock: clk,
		log:   log,
	}, nil
}

func (s *FileStore) path(scope update.Scope) string {
	return filepath.Join(s.dir, scope.String()+fileSuffix)
}

func (s *FileStore) Get(_ context.Context, scope update.Scope) (Data, error) {
	record, err := s.read(s.path(scope))
	if err != nil {
		return nil, err
	}

	if s.expired(record) {
		fresh, removed, err := s.removeExpired(s.path(scope))
		if err != nil {
			s.log.Warn("failed to remove expired session file", "scope", scope.String(), "error", err)
			return nil, ErrNotFound
		}
		if removed {
			return nil, ErrNotFound
		}
		record = fresh
	}

	if record.Data == nil {
		record.Data = Data{}
	}
	return record.Data, nil
}

func (s *FileStore) Set(_ context.Context, scope update.Scope, data Data, ttl time.Duration) error {
	record := fileRecord{Data: data}
	if record.Data == nil {
		record.Data = Data{}
	}
	if ttl > 0 {
		expiresAt := s.clock.Now().Add(ttl)
		record.ExpiresAt = &expiresAt
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewSessionBackendError("encode", err)
	}

	if err := s.writeAtomic(s.path(scope), raw); err != nil {
		s.log.Error("failed to write session file", "scope", scope.String(), "error", err)
		return apperrors.NewSessionBackendError("set", err)
	}

	return nil
}

func (s *FileStore) Remove(_ context.Context, scope update.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(scope)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.NewSessionBackendError("remove", err)
	}
	return nil
}

// Range calls fn for every live session file.
func (s *FileStore) Range(ctx context.Context, fn func(scope update.Scope, data Data) error) error {
	return s.walk(ctx, func(scope update.Scope, record fileRecord, _ string) error {
		if s.expired(record) {
			return nil
		}
		return fn(scope, record.Data)
	})
}

// Sweep deletes expired session files and returns how many were removed.
func (s *FileStore) Sweep(ctx context.Context) (int, error) {
	removed := 0
	err := s.walk(ctx, func(_ update.Scope, record fileRecord, path string) error {
		if !s.expired(record) {
			return nil
		}
		_, ok, err := s.removeExpired(path)
		if err != nil {
			return err
		}
		if ok {
			removed++
		}
		return nil
	})

	return removed, err
}

func (s *FileStore) expired(record fileRecord) bool {
	return record.ExpiresAt != nil && !s.clock.Now().Before(*record.ExpiresAt)
}

// removeExpired deletes path only if the record on disk is still expired once the
// store lock is held. Otherwise it returns the live record found there.
func (s *FileStore) removeExpired(path string) (fileRecord, bool, error) {
	if s.beforeExpire != nil {
		s.beforeExpire(path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.read(path)
	if errors.Is(err, ErrNotFound) {
		return fileRecord{}, true, nil
	}
	if err != nil {
		return fileRecord{}, false, err
	}

	if !s.expired(record) {
		if record.Data == nil {
			record.Data = Data{}
		}
		return record, false, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fileRecord{}, false, err
	}
	return fileRecord{}, true, nil
}

func (s *FileStore) walk(ctx context.Context, fn func(scope update.Scope, record fileRecord, path string) error) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return apperrors.NewSessionBackendError("list", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}

		scope, err := update.ParseScope(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}

		path := filepath.Join(s.dir, name)
		record, err := s.read(path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Warn("skipping unreadable session file", "file", name, "error", err)
			continue
		}

		if err := fn(scope, record, path); err != nil {
			return err
		}
	}

	return nil
}

func (s *FileStore) read(path string) (fileRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fileRecord{}, ErrNotFound
		}
		return fileRecord{}, apperrors.NewSessionBackendError("get", err)
	}

	var record fileRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return fileRecord{}, apperrors.NewSessionBackendError("decode", fmt.Errorf("%s: %w", filepath.Base(path), err))
	}

	return record, nil
}

func (s *FileStore) writeAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}
