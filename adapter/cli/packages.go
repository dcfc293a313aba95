package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/spf13/cobra"
)

var packagesJSON bool

var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "List the package catalog",
	Long: `List every package that can be purchased or granted.

Examples:
  counsel packages
  counsel packages --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		pkgs := ledgerDomain.Packages()

		if packagesJSON {
			output, err := json.MarshalIndent(pkgs, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal packages: %w", err)
			}
			fmt.Fprintln(out, string(output))
			return nil
		}

		fmt.Fprintf(out, "%-24s %-16s %9s %11s %12s %8s\n", "TAG", "KIND", "SOLUTIONS", "DISCUSSIONS", "ALLOWANCE", "PRICE")
		fmt.Fprintln(out, strings.Repeat("-", 85))
		for _, p := range pkgs {
			fmt.Fprintf(out, "%-24s %-16s %9d %11d %12d %8s\n",
				p.Tag, p.Kind, p.Solutions, p.Discussions, p.DiscussionBase, p.Price.StringFixed(0))
		}
		fmt.Fprintf(out, "\nFree tier discussion allowance: %d\n", ledgerDomain.FreeTierAllowance)
		return nil
	},
}

func init() {
	packagesCmd.Flags().BoolVar(&packagesJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(packagesCmd)
}
