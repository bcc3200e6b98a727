package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sweepTimeout = 30 * time.Second

// Purger deletes rows that have outlived their expiry
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps expired sessions and verification
// codes. Reads already ignore expired rows; this only reclaims space.
type CleanupManager struct {
	purgers  map[string]Purger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager takes purgers keyed by a name used in logs
func NewCleanupManager(purgers map[string]Purger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		purgers:  purgers,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until ctx is
// cancelled or Stop is called
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce sweeps every purger once. A failing purger does not stop the others.
func (cm *CleanupManager) RunOnce(ctx context.Context) map[string]int64 {
	deleted := make(map[string]int64, len(cm.purgers))

	for name, p := range cm.purgers {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		n, err := p.PurgeExpired(sweepCtx)
		cancel()

		if err != nil {
			cm.logger.Error("expired row cleanup failed", slog.String("table", name), slog.Any("error", err))
			continue
		}

		deleted[name] = n
		if n > 0 {
			cm.logger.Info("expired rows removed", slog.String("table", name), slog.Int64("rows_deleted", n))
		}
	}

	return deleted
}

// Stop signals the cleanup loop to exit. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
