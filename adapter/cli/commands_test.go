package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	internalApp "github.com/felixgeelhaar/counsel/internal/app"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		AppEnv:               "development",
		DatabaseDriver:       "auto",
		SQLitePath:           filepath.Join(t.TempDir(), "counsel.db"),
		SessionTTL:           time.Hour,
		OutboxPollInterval:   time.Second,
		OutboxBatchSize:      10,
		OutboxMaxRetries:     3,
		SchedulerRunAt:       "03:00",
		SchedulerRetryDelay:  time.Hour,
		SchedulerConcurrency: 1,
		SchedulerItemTimeout: time.Second,
	}
	c, err := internalApp.NewContainer(context.Background(), cfg, internalApp.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	a := &App{
		Ledger:      c.Ledger,
		Scheduler:   c.Scheduler,
		NewEngine:   c.NewEngine,
		Migrate:     c.Migrate,
		Health:      c.Health,
		CurrentUser: "tg-1",
	}
	SetApp(a)
	t.Cleanup(func() {
		SetApp(nil)
		c.Close()
	})
	return a
}

func run(cmd *cobra.Command, args ...string) (string, error) {
	var output strings.Builder
	cmd.SetContext(context.Background())
	cmd.SetOut(&output)
	err := cmd.RunE(cmd, args)
	return output.String(), err
}

func TestCommands_NoApp(t *testing.T) {
	SetApp(nil)

	for _, cmd := range []*cobra.Command{migrateCmd, sweepCmd, healthCmd} {
		t.Run(cmd.Name(), func(t *testing.T) {
			_, err := run(cmd)
			assert.ErrorIs(t, err, ErrNoApp)
		})
	}
}

func TestPackagesCmd_Table(t *testing.T) {
	packagesJSON = false
	SetApp(nil)

	out, err := run(packagesCmd)
	require.NoError(t, err)

	assert.Contains(t, out, "TAG")
	assert.Contains(t, out, "subscription_premium")
	assert.Contains(t, out, "discussion_15")
	assert.Contains(t, out, "Free tier discussion allowance: 5")
}

func TestPackagesCmd_JSON(t *testing.T) {
	packagesJSON = true
	defer func() { packagesJSON = false }()

	out, err := run(packagesCmd)
	require.NoError(t, err)

	var pkgs []ledgerDomain.Package
	require.NoError(t, json.Unmarshal([]byte(out), &pkgs))
	assert.Len(t, pkgs, len(ledgerDomain.Packages()))
}

func TestMigrateCmd_UpToDate(t *testing.T) {
	setupApp(t)

	out, err := run(migrateCmd)
	require.NoError(t, err)
	assert.Equal(t, "Schema is up to date.\n", out)
}

func TestSweepCmd(t *testing.T) {
	sweepJSON = false
	a := setupApp(t)

	res, err := a.Ledger.RegisterUser(context.Background(), ledgerApp.RegisterUserCommand{ExternalID: "tg-1"})
	require.NoError(t, err)
	_, err = a.Ledger.CreateOrRenewSubscription(context.Background(), res.UserID, "standard")
	require.NoError(t, err)

	out, err := run(sweepCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "Checked:     1")
	assert.Contains(t, out, "Failed:      0")
}

func TestHealthCmd(t *testing.T) {
	setupApp(t)

	out, err := run(healthCmd)
	require.NoError(t, err)
	assert.Contains(t, out, "database   healthy")
	assert.Contains(t, out, "overall    healthy")
}

func TestResolveUser(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	_, err := a.ResolveUser(ctx, "", false)
	assert.ErrorIs(t, err, ledgerDomain.ErrUserNotFound)

	created, err := a.ResolveUser(ctx, "", true)
	require.NoError(t, err)

	found, err := a.ResolveUser(ctx, " tg-1 ", false)
	require.NoError(t, err)
	assert.Equal(t, created, found)
}
