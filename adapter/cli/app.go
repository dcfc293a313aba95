package cli

import (
	"context"
	"errors"
	"strings"

	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	lifecycleApp "github.com/felixgeelhaar/counsel/internal/lifecycle/application"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/google/uuid"
)

// ErrNoApp is returned by commands that need the container.
var ErrNoApp = errors.New("command requires database connection")

// App holds the CLI application dependencies.
type App struct {
	Ledger    *ledgerApp.Service
	Scheduler *lifecycleApp.Scheduler

	// NewEngine builds a conversation engine presenting through presenter.
	NewEngine func(presenter conversationApp.Presenter) *conversationApp.Engine

	// Migrate applies the embedded schema.
	Migrate func(ctx context.Context) ([]string, error)

	// Health reports the state of storage and brokers.
	Health *observability.HealthRegistry

	// CurrentUser is the external id of the terminal user.
	CurrentUser string
}

// ResolveUser returns the id of the user with externalID, or of the
// current user when externalID is empty. Unknown users are registered when
// create is set.
func (a *App) ResolveUser(ctx context.Context, externalID string, create bool) (uuid.UUID, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		externalID = a.CurrentUser
	}
	if create {
		res, err := a.Ledger.RegisterUser(ctx, ledgerApp.RegisterUserCommand{ExternalID: externalID})
		if err != nil {
			return uuid.Nil, err
		}
		return res.UserID, nil
	}
	user, err := a.Ledger.FindByExternalID(ctx, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID(), nil
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}

// RequireLedger returns the app when the ledger is wired.
func RequireLedger() (*App, error) {
	if app == nil || app.Ledger == nil {
		return nil, ErrNoApp
	}
	return app, nil
}
