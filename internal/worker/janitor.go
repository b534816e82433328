// Package worker contains the background coordinators: the cache janitor that
// evicts expired API cache entries and the backup coordinator that ships the
// state database to S3-compatible storage.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// ExpiringCacheStore defines the operations required for cache eviction.
// Implemented by SQLiteStore.
type ExpiringCacheStore interface {
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error)
}

// CacheJanitor periodically evicts expired API cache entries. Expiry is
// enforced at read time regardless; the janitor only reclaims storage.
type CacheJanitor struct {
	store    ExpiringCacheStore
	interval time.Duration
}

// NewCacheJanitor creates a janitor sweeping at the given interval.
func NewCacheJanitor(store ExpiringCacheStore, interval time.Duration) *CacheJanitor {
	return &CacheJanitor{store: store, interval: interval}
}

// Run starts the janitor loop. It blocks until ctx is cancelled.
//
// The first sweep waits for a full interval: reads already treat expired
// entries as absent, so there is nothing urgent to reclaim at startup.
func (j *CacheJanitor) Run(ctx context.Context) {
	slog.Info("cache janitor started",
		"component", "worker",
		"worker", "cache-janitor",
		"interval", j.interval.String(),
	)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache janitor stopped",
				"component", "worker",
				"worker", "cache-janitor",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

// sweep runs one eviction pass.
func (j *CacheJanitor) sweep(ctx context.Context) {
	start := time.Now()

	evicted, err := j.store.DeleteExpiredCacheEntries(ctx, start)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Error("cache eviction failed",
			"component", "worker",
			"worker", "cache-janitor",
			"error", err,
		)
		return
	}

	if evicted > 0 {
		slog.Info("cache sweep completed",
			"component", "worker",
			"worker", "cache-janitor",
			"entries_evicted", evicted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
