package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// linkCommand creates the link command.
func (c *CLI) linkCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "link <dir>",
		Short: "Bind a package to a local folder",
		Long: `Bind a package to a local folder. Edits in the folder are visible in the
project immediately. The name defaults to the folder name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd.Context(), "Linking", "Linked", func(ctx context.Context, s *session) (bool, error) {
				return s.installer.Link(ctx, name, args[0], s.options())
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "install name (default: folder name)")
	return cmd
}

// checkoutCommand creates the checkout command.
func (c *CLI) checkoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <selector...>",
		Short: "Replace store links with editable copies",
		Long: `Replace the store links of installed packages with editable copies in
stackpm_packages. Checked-out packages are kept by later installs and only
removed by clean after confirmation.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeInstalled,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd.Context(), "Checking out", "Checked out", func(ctx context.Context, s *session) (bool, error) {
				return false, s.installer.Checkout(ctx, args)
			})
		},
	}
}
