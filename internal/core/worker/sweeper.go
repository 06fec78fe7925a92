package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/citelinker/resolver/internal/resolve/batch"
	"github.com/citelinker/resolver/internal/resolve/cache"
)

// Sweeper removes expired cache entries and retired batch sessions.
type Sweeper struct {
	cache    *cache.Cache
	runner   *batch.Runner
	interval time.Duration
}

// NewSweeper creates a new Sweeper worker.
func NewSweeper(c *cache.Cache, runner *batch.Runner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		cache:    c,
		runner:   runner,
		interval: interval,
	}
}

// Start runs the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Initial sweep
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if s.cache != nil {
		count, bytes, err := s.cache.SweepExpired(ctx)
		if err != nil {
			slog.Error("Cache sweep failed", "error", err)
		} else if count > 0 {
			slog.Info("Swept expired cache entries", "count", count, "bytes", bytes)
		}
	}

	if s.runner != nil {
		if removed := s.runner.SweepSessions(); removed > 0 {
			slog.Info("Swept retired batch sessions", "count", removed)
		}
	}
}
