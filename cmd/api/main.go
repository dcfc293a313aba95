package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/counsel/adapter/api"
	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/counsel/internal/app"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFor("", "", "", cli.Version).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)
	logger.Info("starting counsel api")

	container, err := app.NewContainer(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if cfg.OutboxProcessorEnabled {
		container.OutboxProcessor.Start(ctx)
	}

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.APIAddr
	serverCfg.AuthToken = cfg.APIAuthToken
	handler := api.NewLedgerHandler(container.Ledger, logger.With("component", "api"))
	server := api.NewServer(serverCfg, handler, container.Health, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("api server error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown error", "error", err)
	}
	cancel()
	logger.Info("api stopped")
}
