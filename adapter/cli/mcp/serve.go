package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/counsel/internal/mcp"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger := newServerLogger(cmd.ErrOrStderr(), cfg.IsDevelopment())
		err = mcpinternal.Serve(cmd.Context(), cfg, app, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func newServerLogger(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}
