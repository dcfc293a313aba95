package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/counsel/adapter/cli/chat"
	"github.com/felixgeelhaar/counsel/adapter/cli/ledger"
	cliMCP "github.com/felixgeelhaar/counsel/adapter/cli/mcp"
	"github.com/felixgeelhaar/counsel/internal/app"
	mcpinternal "github.com/felixgeelhaar/counsel/internal/mcp"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		observability.LoggerFor("", "", "", cli.Version).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.LoggerFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version)
	cli.SetLogger(logger)

	container, err := app.NewContainer(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		if !cfg.IsDevelopment() {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		// Commands that need no storage (version, packages) still work.
		logger.Warn("failed to initialize container, running in limited mode", "error", err)
	} else {
		defer container.Close()

		if cfg.OutboxProcessorEnabled {
			container.OutboxProcessor.Start(ctx)
		} else {
			logger.Info("outbox processor disabled in CLI")
		}

		cli.SetApp(mcpinternal.NewCLIApp(container, cfg.User))
	}

	cli.AddCommand(ledger.Cmd)
	cli.AddCommand(chat.Cmd)
	cli.AddCommand(chat.ProblemsCmd)
	cli.AddCommand(cliMCP.Cmd)

	cli.Execute(ctx)
}
