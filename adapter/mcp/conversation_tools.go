package mcp

import (
	"context"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/google/uuid"
)

type problemsInput struct {
	ExternalID string `json:"external_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// discardPresenter satisfies the engine for read-only queries.
type discardPresenter struct{}

func (discardPresenter) Present(context.Context, uuid.UUID, conversationApp.Outcome) error {
	return nil
}

func registerConversationTools(srv *mcp.Server, deps ToolDependencies) error {
	app := deps.App

	srv.Tool("conversation.problems").
		Description("List a user's most recent problems with their status and root cause").
		Handler(func(ctx context.Context, input problemsInput) ([]conversationApp.ProblemView, error) {
			return recentProblems(ctx, app, input)
		})

	return nil
}

func recentProblems(ctx context.Context, app *cli.App, input problemsInput) ([]conversationApp.ProblemView, error) {
	if app == nil || app.Ledger == nil || app.NewEngine == nil {
		return nil, cli.ErrNoApp
	}
	userID, err := app.ResolveUser(ctx, input.ExternalID, false)
	if err != nil {
		return nil, err
	}
	limit := min(input.Limit, conversationDomain.HistoryPageSize)
	return app.NewEngine(discardPresenter{}).RecentProblems(ctx, userID, limit)
}
