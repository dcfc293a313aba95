package chat

import (
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/spf13/cobra"
)

var (
	problemsUser string
	problemsJSON bool
)

// ProblemsCmd lists the user's recent problems.
var ProblemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List recent problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		if app.NewEngine == nil {
			return cli.ErrNoApp
		}
		userID, err := app.ResolveUser(cmd.Context(), problemsUser, false)
		if err != nil {
			return err
		}

		engine := app.NewEngine(NewTerminalPresenter(cmd.OutOrStdout()))
		problems, err := engine.RecentProblems(cmd.Context(), userID, conversationDomain.HistoryPageSize)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if problemsJSON {
			output, err := json.MarshalIndent(problems, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal problems: %w", err)
			}
			fmt.Fprintln(out, string(output))
			return nil
		}
		if len(problems) == 0 {
			fmt.Fprintln(out, "No problems yet.")
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(out, "%s  %-7s %s\n", p.CreatedAt.Format("2006-01-02 15:04"), p.Status, p.Title)
		}
		return nil
	},
}

func init() {
	ProblemsCmd.Flags().StringVarP(&problemsUser, "user", "u", "", "external id of the user (default: current user)")
	ProblemsCmd.Flags().BoolVar(&problemsJSON, "json", false, "output as JSON")
}
