// Polystore - polyglot persistence with dual writes, consistency checks and
// backfill reconciliation.

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polystore/polystore/internal/api"
	"github.com/polystore/polystore/internal/bus"
	"github.com/polystore/polystore/internal/cache"
	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/polyglot"
	"github.com/polystore/polystore/internal/resolver"
	"github.com/polystore/polystore/internal/store"
	"github.com/polystore/polystore/internal/synclog"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	slog.Info("starting polystore",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"mode", string(cfg.Polyglot.Mode),
		"default_target", string(cfg.Polyglot.DefaultTarget),
		"document", cfg.Document.Driver,
		"relational", cfg.Relational.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Backend stores
	relational, err := store.New(cfg.Relational)
	if err != nil {
		slog.Error("failed to initialize relational store", "error", err)
		os.Exit(1)
	}
	defer relational.Close()
	slog.Info("relational store initialized", "driver", cfg.Relational.Driver)

	document, err := store.New(cfg.Document)
	if err != nil {
		slog.Error("failed to initialize document store", "error", err)
		os.Exit(1)
	}
	defer document.Close()
	slog.Info("document store initialized", "driver", cfg.Document.Driver)

	backends := polyglot.Backends{Document: document, Relational: relational}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	syncLog, err := synclog.New(cfg.SyncLog)
	if err != nil {
		slog.Error("failed to initialize sync log", "error", err)
		os.Exit(1)
	}
	defer syncLog.Close()
	slog.Info("sync log initialized", "driver", cfg.SyncLog.Driver)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	res := resolver.New(cfg.Polyglot)
	backfiller := polyglot.NewBackfiller(document, relational, syncLog, busImpl, res)

	if cfg.Polyglot.EnableSyncLogging && cfg.Polyglot.SyncLogRetentionDays > 0 {
		go runRetention(ctx, syncLog, cfg.Polyglot.SyncLogRetentionDays)
	}

	handler := api.NewHandler(backends, cacheImpl, syncLog, backfiller, res, Version)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("polystore is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("polystore stopped")
}

// loadConfig reads defaults, an optional YAML file named by POLYSTORE_CONFIG,
// and a couple of coarse environment overrides.
func loadConfig() (*domain.Config, error) {
	cfg := domain.DefaultConfig()

	if path := os.Getenv("POLYSTORE_CONFIG"); path != "" {
		loaded, err := domain.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if mode := os.Getenv("POLYSTORE_MODE"); mode != "" {
		cfg.Polyglot.Mode = domain.Mode(mode)
	}
	if target := os.Getenv("POLYSTORE_DEFAULT_TARGET"); target != "" {
		cfg.Polyglot.DefaultTarget = domain.Target(target)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("POLYSTORE_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// runRetention purges finalized sync log entries past the retention window,
// once at startup and then daily.
func runRetention(ctx context.Context, log domain.SyncLog, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	purge := func() {
		cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
		removed, err := log.Purge(ctx, cutoff)
		if err != nil {
			slog.Error("sync log retention purge failed", "error", err)
			return
		}
		if removed > 0 {
			slog.Info("sync log retention purge", "removed", removed, "cutoff", cutoff)
		}
	}

	purge()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
