// Command ydns-accounts runs the YDNS account service and its maintenance
// tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ydns-accounts",
		Short: "YDNS account and access-control service",
		Long: `ydns-accounts serves signup, login (email or Facebook, GitHub and
Google OAuth), activation, password reset and domain ownership for YDNS.

Configuration is read from YDNS_* environment variables.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewReapTokensCmd())
	cmd.AddCommand(NewLoginCmd())
	cmd.AddCommand(NewLogoutCmd())
	cmd.AddCommand(NewDomainsCmd())
	return cmd
}
