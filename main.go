package main

import (
	"CloudVault/config"
	"CloudVault/internal/handler"
	"CloudVault/internal/logging"
	"CloudVault/internal/mq"
	"CloudVault/internal/optimize"
	"CloudVault/internal/repo"
	"CloudVault/internal/service"
	"CloudVault/internal/storage"
	"CloudVault/internal/task"
	"CloudVault/router"
	"CloudVault/utils"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// main wires the configured backends and starts the HTTP server.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		return err
	}

	backend, err := storage.New(cfg.Storage)
	if err != nil {
		return err
	}

	deps := service.Deps{
		Backend:       backend,
		Pipeline:      optimize.NewPipeline(cfg.Optimize, nil),
		Logger:        logger,
		Group:         cfg.Storage.BucketGroup,
		PresignExpiry: cfg.Storage.PresignExpiry,
	}

	var versions repo.VersionRepository = repo.NewGormVersionRepository(db)
	if cfg.RedisEnabled {
		rdb, err := repo.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Warn(ctx, "redis unavailable, running without cache and locks", "error", err)
		} else {
			defer rdb.Close()
			versions = repo.NewCachedVersionRepository(versions, utils.NewRedisCache(rdb), cfg.CacheTTL)
			deps.Locker = repo.NewRedisLocker(rdb, "cloudvault:lock", cfg.LockTTL)
		}
	}
	deps.Repo = versions

	if cfg.RabbitMQEnabled {
		publisher := mq.NewPublisher(cfg.RabbitMQURL)
		defer publisher.Close()
		deps.Orphans = task.NewCleanupPublisher(publisher)
	}

	svc := service.NewFileVersionService(deps)
	files := handler.NewFileHandler(svc, cfg.Optimize.ScratchDir, logger)
	var objects *handler.ObjectHandler
	if local, ok := backend.(*storage.LocalBackend); ok {
		objects = handler.NewObjectHandler(local)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.InitRouter(files, objects, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http server listening", "addr", cfg.HTTPAddr, "backend", cfg.Storage.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
