package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for operator workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("account_review").
		Description("Review a user's entitlements and recent problems before answering a support request.").
		Argument("external_id", "External id of the user; defaults to the current user", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			user := args["external_id"]
			if user == "" {
				user = "the current user"
			}
			return &mcp.PromptResult{
				Description: "Account Review",
				Messages: []mcp.PromptMessage{
					{
						Role: string(mcp.RoleUser),
						Content: mcp.TextContent{
							Type: "text",
							Text: fmt.Sprintf(`Review the account of %s. Please:

1. Check the balance using the ledger.balance tool
2. List recent problems using the conversation.problems tool
3. Compare against the catalog in the counsel://packages resource

Then summarize:
- Remaining problem credits and discussion allowance
- Subscription plan, status and next billing date
- Whether any problem was left unsolved

If the user is out of credits, suggest the package that fits their usage.
Use ledger.grant only when asked to compensate the user.`, user),
						},
					},
				},
			}, nil
		})

	return nil
}
