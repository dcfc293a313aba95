// Package chat runs the conversation engine in the terminal.
package chat

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/counsel/adapter/cli"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/spf13/cobra"
)

var chatUser string

// Cmd starts an interactive session.
var Cmd = &cobra.Command{
	Use:   "chat",
	Short: "Work through a problem in the terminal",
	Long: `Describe a problem, answer the clarifying questions and receive a
written solution, then ask follow-up questions about it.

Commands:
  /new       start a new problem (spends one problem credit)
  /skip      skip the current question
  /solution  get the solution early
  /discuss   discuss the solution
  /quit      leave; the session is kept until it expires`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireLedger()
		if err != nil {
			return err
		}
		if app.NewEngine == nil {
			return cli.ErrNoApp
		}
		ctx := cmd.Context()
		userID, err := app.ResolveUser(ctx, chatUser, true)
		if err != nil {
			return err
		}

		engine := app.NewEngine(NewTerminalPresenter(cmd.OutOrStdout()))
		phase, err := engine.CurrentPhase(ctx, userID)
		if err != nil {
			return err
		}
		if phase == conversationDomain.PhaseIdle {
			if _, err := engine.StartProblem(ctx, userID); err != nil && !errors.Is(err, conversationDomain.ErrThrottled) {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Resuming your conversation (%s). Type /new to start over.\n", phase)
		}

		return engine.Drive(ctx, userID, NewTerminalInput(cmd.InOrStdin(), nil))
	},
}

func init() {
	Cmd.Flags().StringVarP(&chatUser, "user", "u", "", "external id of the user (default: current user)")
}
