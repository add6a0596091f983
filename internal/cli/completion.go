package cli

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// completionCommand creates the completion command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for stackpm. Package arguments of checkout,
update and uninstall complete from stackpm.lock; auth completes configured
registry names.

  $ source <(stackpm completion bash)
  $ stackpm completion zsh > "${fpath[1]}/_stackpm"
  $ stackpm completion fish > ~/.config/fish/completions/stackpm.fish
  PS> stackpm completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}
			return nil
		},
	}
}

// completeInstalled completes the install names bound at the root of the
// project lockfile, skipping names already on the command line.
func (c *CLI) completeInstalled(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	t, err := tree.Load(filepath.Join(dir, install.LockfileName))
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	roots := t.Roots()
	var out []string
	for _, name := range slices.Sorted(maps.Keys(roots)) {
		if slices.Contains(args, name) || !strings.HasPrefix(name, toComplete) {
			continue
		}
		out = append(out, name+"\t"+roots[name].String())
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// completeRegistries completes the registry names of the config file.
func (c *CLI) completeRegistries(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	var out []string
	for _, name := range slices.Sorted(maps.Keys(cfg.Registries)) {
		if strings.HasPrefix(name, toComplete) {
			out = append(out, name+"\t"+cfg.Registries[name].URL)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
