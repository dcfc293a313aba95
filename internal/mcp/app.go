package mcp

import (
	"github.com/felixgeelhaar/counsel/adapter/cli"
	"github.com/felixgeelhaar/counsel/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container, currentUser string) *cli.App {
	return &cli.App{
		Ledger:      container.Ledger,
		Scheduler:   container.Scheduler,
		NewEngine:   container.NewEngine,
		Migrate:     container.Migrate,
		Health:      container.Health,
		CurrentUser: currentUser,
	}
}
