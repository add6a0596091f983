package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var (
		flags          operationFlags
		dev, peer, opt bool
		latest, lock   bool
	)

	cmd := &cobra.Command{
		Use:     "install [package...]",
		Aliases: []string{"i", "add"},
		Short:   "Install packages and their dependencies",
		Long: `Install packages and record them in package.json.

Packages are targets resolved against a registry, or source locators:

  stackpm install left@^1.0.0            # default registry
  stackpm install npm:@scope/util@2      # explicit registry
  stackpm install old=npm:right@~2.0.0   # install under another name
  stackpm install git+https://github.com/acme/widget.git#v1.2.0
  stackpm install ../local/package       # link a local folder

Without arguments every dependency of package.json is installed, reusing
the resolutions in stackpm.lock wherever they still satisfy the range.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := depType(dev, peer, opt)
			if err != nil {
				return err
			}
			return c.runOperation(cmd.Context(), "Installing", "Installed", func(ctx context.Context, s *session) (bool, error) {
				installs, err := parseInstalls(args, typ, s.cfg.DefaultRegistry)
				if err != nil {
					return false, err
				}
				opts := flags.apply(s.options())
				opts.Latest = latest
				opts.Lock = lock
				return s.installer.Install(ctx, installs, opts)
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&dev, "dev", "D", false, "record as a dev dependency")
	cmd.Flags().BoolVarP(&peer, "peer", "P", false, "record as a peer dependency")
	cmd.Flags().BoolVarP(&opt, "optional", "O", false, "record as an optional dependency")
	cmd.Flags().BoolVar(&latest, "latest", false, "re-resolve nested dependencies instead of reusing the lockfile")
	cmd.Flags().BoolVar(&lock, "lock", false, "reuse lockfile resolutions for the requested packages too")

	return cmd
}

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	var flags operationFlags

	cmd := &cobra.Command{
		Use:     "update <selector...>",
		Aliases: []string{"up", "upgrade"},
		Short:   "Re-resolve installed packages against their declared ranges",
		Long: `Re-resolve installed packages to the newest version their declared
range accepts.

A selector is an install name ("left"), a qualified name ("npm:left") and
optionally a range ("left@^1.0.0"). Every selector must match a single
installed package.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeInstalled,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOperation(cmd.Context(), "Updating", "Updated", func(ctx context.Context, s *session) (bool, error) {
				return s.installer.Update(ctx, args, flags.apply(s.options()))
			})
		},
	}

	flags.register(cmd)
	return cmd
}
