package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/symptom-checker/internal/store"
)

// SweeperConfig configures the background sweeper.
type SweeperConfig struct {
	Interval   time.Duration
	SessionTTL time.Duration
	Retention  time.Duration // zero disables record cleanup
}

// StartSweeper runs a background goroutine that periodically evicts idle
// sessions and removes interaction records past retention. It stops when ctx
// is cancelled.
func StartSweeper(ctx context.Context, mgr *Manager, repo store.Repository, cfg SweeperConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started",
			"interval", cfg.Interval,
			"session_ttl", cfg.SessionTTL,
			"retention", cfg.Retention)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, mgr, repo, cfg)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, mgr *Manager, repo store.Repository, cfg SweeperConfig) {
	if cfg.SessionTTL > 0 {
		if n := mgr.EvictIdle(cfg.SessionTTL); n > 0 {
			slog.Info("Session sweeper evicted idle sessions", "count", n, "remaining", mgr.Count())
		}
	}

	if repo == nil || cfg.Retention <= 0 {
		return
	}
	deleted, err := repo.CleanupOlderThan(ctx, cfg.Retention)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("Session sweeper failed to clean up interactions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper removed expired interactions", "count", deleted)
	}
}
