package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type userInput struct {
	ExternalID string `json:"external_id,omitempty" jsonschema:"description=External id of the user; defaults to the current user"`
}

type grantInput struct {
	ExternalID string `json:"external_id,omitempty"`
	Package    string `json:"package" jsonschema:"required"`
}

type packageView struct {
	Tag            string `json:"tag"`
	Kind           string `json:"kind"`
	Plan           string `json:"plan,omitempty"`
	Solutions      int    `json:"solutions"`
	DiscussionBase int    `json:"discussion_base"`
	Discussions    int    `json:"discussions"`
	Price          string `json:"price"`
	Currency       string `json:"currency"`
}

func registerLedgerTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("ledger.balance").
		Description("Show a user's problem credits, discussion allowance, subscription and referrals").
		Handler(func(ctx context.Context, input userInput) (*ledgerApp.Balance, error) {
			return balance(ctx, app, input)
		})

	srv.Tool("ledger.packages").
		Description("List the package catalog").
		Handler(func(ctx context.Context, input struct{}) ([]packageView, error) {
			return packages(), nil
		})

	srv.Tool("ledger.grant").
		Description("Grant a catalog package to a user without a payment").
		Handler(func(ctx context.Context, input grantInput) (*ledgerApp.Balance, error) {
			return grant(ctx, app, input)
		})

	return nil
}

func balance(ctx context.Context, app *cli.App, input userInput) (*ledgerApp.Balance, error) {
	if app == nil || app.Ledger == nil {
		return nil, cli.ErrNoApp
	}
	userID, err := app.ResolveUser(ctx, input.ExternalID, false)
	if err != nil {
		return nil, err
	}
	return app.Ledger.Balance(ctx, userID)
}

func packages() []packageView {
	pkgs := ledgerDomain.Packages()
	out := make([]packageView, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, packageView{
			Tag:            p.Tag,
			Kind:           string(p.Kind),
			Plan:           p.Plan,
			Solutions:      p.Solutions,
			DiscussionBase: p.DiscussionBase,
			Discussions:    p.Discussions,
			Price:          p.Price.StringFixed(2),
			Currency:       p.Currency,
		})
	}
	return out
}

func grant(ctx context.Context, app *cli.App, input grantInput) (*ledgerApp.Balance, error) {
	if app == nil || app.Ledger == nil {
		return nil, cli.ErrNoApp
	}
	if input.Package == "" {
		return nil, errors.New("package is required")
	}
	userID, err := app.ResolveUser(ctx, input.ExternalID, true)
	if err != nil {
		return nil, err
	}
	if err := app.Ledger.Grant(ctx, userID, input.Package); err != nil {
		return nil, err
	}
	return app.Ledger.Balance(ctx, userID)
}
