package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweepable is implemented by stores that need periodic removal of expired sessions.
// RedisStore does not need it because keys expire natively.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// Sweeper removes expired sessions on a schedule.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	log      *slog.Logger
}

// NewSweeper constructs a Sweeper. A non-positive interval defaults to one minute.
func NewSweeper(store Sweepable, interval time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
	}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session sweeper stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			removed, err := s.store.Sweep(ctx)
			if err != nil {
				s.log.Error("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.log.Info("expired sessions removed", slog.Int("count", removed))
			}
		}
	}
}
