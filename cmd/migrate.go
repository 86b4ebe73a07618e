package cmd

import (
	"github.com/spf13/cobra"
)

// newMigrateCmd creates the 'migrate' subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates the company table",
		Long: `Creates the company table with its unique e-mail constraint for the
configured SQL store. It is safe to run repeatedly. The crawl command runs the
same step before crawling.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Migrate(cmd.Context())
		},
	}
}
