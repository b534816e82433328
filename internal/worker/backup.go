package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/sparklabs/sparkshell/internal/snapshot"
)

// BackupCoordinator periodically uploads the state database to backup
// storage. With a NoopUploader every cycle is a cheap no-op, so the
// coordinator runs unconditionally.
type BackupCoordinator struct {
	uploader snapshot.Uploader
	dbPath   string
	interval time.Duration
}

// NewBackupCoordinator creates a coordinator backing up the database at
// dbPath on the given interval.
func NewBackupCoordinator(uploader snapshot.Uploader, dbPath string, interval time.Duration) *BackupCoordinator {
	return &BackupCoordinator{
		uploader: uploader,
		dbPath:   dbPath,
		interval: interval,
	}
}

// Run starts the backup loop. It blocks until ctx is cancelled.
//
// The first upload waits for a full interval so startup is not delayed by a
// potentially slow network transfer.
func (c *BackupCoordinator) Run(ctx context.Context) {
	slog.Info("backup coordinator started",
		"component", "worker",
		"worker", "backup-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("backup coordinator stopped",
				"component", "worker",
				"worker", "backup-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.backup(ctx)
		}
	}
}

// backup runs one upload cycle.
func (c *BackupCoordinator) backup(ctx context.Context) {
	start := time.Now()

	if err := c.uploader.Upload(ctx, c.dbPath); err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown, don't log as error
		}
		slog.Error("state backup failed",
			"component", "worker",
			"worker", "backup-coordinator",
			"error", err,
		)
		return
	}

	slog.Info("state backup completed",
		"component", "worker",
		"worker", "backup-coordinator",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
