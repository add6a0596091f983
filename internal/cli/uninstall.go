package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/install"
)

// uninstallCommand creates the uninstall command.
func (c *CLI) uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "uninstall <name...>",
		Aliases:           []string{"rm", "remove"},
		Short:             "Remove packages from the project",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeInstalled,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd.Context(), "Uninstalling", "Uninstalled", func(ctx context.Context, s *session) (bool, error) {
				return s.installer.Uninstall(ctx, args)
			})
		},
	}
}

// cleanCommand creates the clean command.
func (c *CLI) cleanCommand() *cobra.Command {
	var noSave bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Drop unreachable packages from the lockfile and stackpm_packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var stale bool
			err := c.runOperation(cmd.Context(), "Cleaning", "Cleaned", func(ctx context.Context, s *session) (bool, error) {
				changed, err := s.installer.Clean(ctx, !noSave)
				if noSave {
					stale = changed
					return false, err
				}
				return changed, err
			})
			if err == nil && stale {
				printWarning("%s has unreachable entries (not saved)", install.LockfileName)
				printNextStep("Save it", appName+" clean")
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noSave, "no-save", false, "prune stackpm_packages without writing the lockfile")
	return cmd
}
