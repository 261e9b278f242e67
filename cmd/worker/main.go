package main

import (
	"CloudVault/config"
	"CloudVault/internal/logging"
	"CloudVault/internal/repo"
	"CloudVault/internal/storage"
	"CloudVault/internal/worker"
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Error(ctx, "storage backend init failed", "error", err)
		os.Exit(1)
	}

	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		logger.Error(ctx, "database init failed", "error", err)
		os.Exit(1)
	}
	versions := repo.NewGormVersionRepository(db)

	logger.Info(ctx, "cleanup worker started", "backend", cfg.Storage.Backend)
	if err := worker.RunCleanupWorker(ctx, cfg, backend, versions, logger); err != nil {
		logger.Error(ctx, "cleanup worker stopped", "error", err)
		os.Exit(1)
	}
}
