package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparklabs/sparkshell/internal/config"
	"github.com/sparklabs/sparkshell/internal/gateway"
	"github.com/sparklabs/sparkshell/internal/push"
	"github.com/sparklabs/sparkshell/internal/session"
	"github.com/sparklabs/sparkshell/internal/snapshot"
	"github.com/sparklabs/sparkshell/internal/store"
	"github.com/sparklabs/sparkshell/internal/viewstate"
	"github.com/sparklabs/sparkshell/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sparkshell",
	Short: "Sparkshell - Spark offline gateway",
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("configuration loaded")

	// 3. Initialize logger
	logger := slog.New(newLogHandler(cfg.Log))
	slog.SetDefault(logger)
	slog.Info("logger initialized", "level", cfg.Log.Level)

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Storage.Path)

	// 5. Restore session state
	state := viewstate.New(db)
	sessions := session.NewManager(state)
	if sessions.Restore(ctx) {
		slog.Info("session restored", "device_id", sessions.DeviceID(ctx))
	} else {
		slog.Info("no persisted session, starting logged out")
	}

	// 6. Gateway lifecycle: pre-cache assets, then clean stale generations
	gw := gateway.New(cfg.Gateway.Upstream, cfg.Cache.Generation,
		time.Duration(cfg.Cache.APITTL), cfg.Cache.Precache, db)
	gw.Install(ctx)
	if err := gw.Activate(ctx); err != nil {
		return err
	}

	// 7. Push hooks resolve clicks against the upstream origin
	origin := cfg.Gateway.Upstream
	if u, parseErr := url.Parse(cfg.Gateway.Upstream); parseErr == nil && u.Host != "" {
		origin = u.Host
	}
	hooks := push.NewHooks(origin)

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Gateway.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gw.Handler(hooks),
		ReadTimeout:  time.Duration(cfg.Gateway.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Gateway.WriteTimeout),
	}

	// 9. Background workers
	uploader, err := snapshot.NewUploader(cfg.Backup)
	if err != nil {
		return err
	}
	janitor := worker.NewCacheJanitor(db, time.Duration(cfg.Cache.JanitorInterval))
	backup := worker.NewBackupCoordinator(uploader, db.Path(), time.Duration(cfg.Backup.Interval))

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "cache-janitor", janitor.Run)
	startWorker(ctx, &wg, "backup-coordinator", backup.Run)

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("gateway serving", "address", addr, "upstream", cfg.Gateway.Upstream)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Gateway.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogHandler(cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
