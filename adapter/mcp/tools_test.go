package mcp

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	internalApp "github.com/felixgeelhaar/counsel/internal/app"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(t *testing.T) *cli.App {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL", "ANTHROPIC_API_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "counsel.db"))
	cfg, err := config.Load()
	require.NoError(t, err)

	c, err := internalApp.NewContainer(context.Background(), cfg, internalApp.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return &cli.App{
		Ledger:      c.Ledger,
		Scheduler:   c.Scheduler,
		NewEngine:   c.NewEngine,
		CurrentUser: "tg-1",
	}
}

func TestRegisterTools_ListTools(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools: true,
		},
	})

	require.NoError(t, RegisterTools(srv, ToolDependencies{App: &cli.App{}}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, name := range []string{"ledger.balance", "ledger.packages", "ledger.grant", "conversation.problems"} {
		assert.True(t, names[name], "%s tool should be registered", name)
	}
}

func TestRegisterTools_RequiresDependencies(t *testing.T) {
	srv := mcp.NewServer(mcp.ServerInfo{Name: "test", Version: "1.0.0"})

	assert.Error(t, RegisterTools(nil, ToolDependencies{App: &cli.App{}}))
	assert.Error(t, RegisterTools(srv, ToolDependencies{}))
	assert.Error(t, RegisterResources(nil, ToolDependencies{}))
	assert.Error(t, RegisterPrompts(nil, ToolDependencies{}))
}

func TestPackages_ListsCatalog(t *testing.T) {
	views := packages()
	require.Len(t, views, len(ledgerDomain.Packages()))

	assert.Equal(t, "starter", views[0].Tag)
	assert.Equal(t, "299.00", views[0].Price)
	assert.Equal(t, ledgerDomain.CatalogCurrency, views[0].Currency)
}

func TestTools_WithoutLedger(t *testing.T) {
	ctx := context.Background()
	empty := &cli.App{}

	_, err := balance(ctx, empty, userInput{})
	assert.ErrorIs(t, err, cli.ErrNoApp)

	_, err = grant(ctx, nil, grantInput{Package: "starter"})
	assert.ErrorIs(t, err, cli.ErrNoApp)

	_, err = recentProblems(ctx, empty, problemsInput{})
	assert.ErrorIs(t, err, cli.ErrNoApp)
}

func TestGrantAndBalance(t *testing.T) {
	ctx := context.Background()
	app := newApp(t)

	_, err := balance(ctx, app, userInput{})
	assert.ErrorIs(t, err, ledgerDomain.ErrUserNotFound)

	_, err = grant(ctx, app, grantInput{})
	assert.Error(t, err)

	_, err = grant(ctx, app, grantInput{Package: "platinum"})
	assert.ErrorIs(t, err, ledgerDomain.ErrUnknownPackage)

	granted, err := grant(ctx, app, grantInput{Package: "starter"})
	require.NoError(t, err)
	assert.Equal(t, "tg-1", granted.ExternalID)
	assert.Equal(t, 6, granted.ProblemCredits)

	b, err := balance(ctx, app, userInput{ExternalID: "tg-1"})
	require.NoError(t, err)
	assert.Equal(t, 6, b.ProblemCredits)
	assert.Equal(t, "starter", b.LastPurchasedPackage)
}

func TestRecentProblems_EmptyHistory(t *testing.T) {
	ctx := context.Background()
	app := newApp(t)

	_, err := recentProblems(ctx, app, problemsInput{})
	assert.ErrorIs(t, err, ledgerDomain.ErrUserNotFound)

	_, err = grant(ctx, app, grantInput{Package: "starter"})
	require.NoError(t, err)

	problems, err := recentProblems(ctx, app, problemsInput{Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, problems)
}
