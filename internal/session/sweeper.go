package session

import (
	"context"
	"log/slog"
	"time"
)

// SweeperRepository is the persistence slice the sweeper uses.
type SweeperRepository interface {
	ExpireTimedOut(ctx context.Context, now time.Time) (int64, error)
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CropPruner releases in-memory face crops of dead sessions.
type CropPruner interface {
	PruneCrops(now time.Time) int
}

// Sweeper periodically expires sessions past their deadline and purges
// terminal ones after the grace period, so abandoned polling clients get
// a definitive "expired" answer and the table stays small.
type Sweeper struct {
	repo     SweeperRepository
	pruner   CropPruner
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(repo SweeperRepository, pruner CropPruner, logger *slog.Logger, interval, grace time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		grace:    grace,
	}
}

// Run starts the sweep loop.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("session sweeper started", "interval", w.interval, "grace", w.grace)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	now := time.Now()

	expired, err := w.repo.ExpireTimedOut(ctx, now)
	if err != nil {
		w.logger.Error("expire timed out sessions", "error", err)
	} else if expired > 0 {
		w.logger.Info("expired sessions", "count", expired)
	}

	purged, err := w.repo.PurgeTerminalBefore(ctx, now.Add(-w.grace))
	if err != nil {
		w.logger.Error("purge terminal sessions", "error", err)
	} else if purged > 0 {
		w.logger.Info("purged sessions", "count", purged)
	}

	if w.pruner != nil {
		if n := w.pruner.PruneCrops(now); n > 0 {
			w.logger.Debug("pruned cached crops", "sessions", n)
		}
	}
}
