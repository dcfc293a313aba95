package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/counsel/internal/app"
	mcpinternal "github.com/felixgeelhaar/counsel/internal/mcp"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFor("", "", "", cli.Version).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)

	container, err := app.NewContainer(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to initialize container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	if cfg.OutboxProcessorEnabled {
		container.OutboxProcessor.Start(ctx)
	}

	cliApp := mcpinternal.NewCLIApp(container, cfg.User)

	if err := mcpinternal.Serve(ctx, cfg, cliApp, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
