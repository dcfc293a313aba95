package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/counsel/internal/app"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFor("", "", "", cli.Version).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)
	logger.Info("starting counsel worker")

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	container, err := app.NewContainer(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to initialize container: %w", err)
	}
	defer container.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := container.Scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.OutboxProcessorEnabled {
		container.OutboxProcessor.Start(ctx)
		g.Go(func() error {
			<-ctx.Done()
			container.OutboxProcessor.Stop()
			return nil
		})
	} else {
		logger.Info("outbox processor disabled")
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.OutboxCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := container.Clock.Now().AddDate(0, 0, -cfg.OutboxRetentionDays)
				deleted, err := container.OutboxRepo.DeleteOld(ctx, cutoff)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			}
		}
	})

	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /healthz", container.Health.Handler())
		mux.Handle("GET /metrics", container.Metrics.Handler())

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return healthSrv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
