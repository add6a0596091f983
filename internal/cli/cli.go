// Package cli is the stackpm command line. Each command loads the config,
// locks the project directory and runs a single installer operation behind
// a spinner, then prints what changed in package.json and stackpm.lock.
//
// Commands log through charmbracelet/log on stderr; --verbose switches to
// debug level and logs every resolve, fetch, link and HTTP request as it
// happens. Commands that run without a session find the logger in their
// context.
package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/buildinfo"
	"github.com/matzehuels/stackpm/pkg/errors"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "stackpm"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// errOut receives the spinner; it is the logger's writer.
	errOut io.Writer

	// Global flags.
	configPath string
	dir        string
	yes        bool
	offline    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), errOut: w, dir: "."}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// verbose reports whether debug logging is on.
func (c *CLI) verbose() bool {
	return c.Logger.GetLevel() <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "stackpm installs packages from registries, git and local folders",
		Long:         `stackpm is a package manager that resolves dependency ranges against npm-compatible registries and git hosts, keeps every package once in a content-addressed global store and links it into the project.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/stackpm/config.toml)")
	flags.StringVarP(&c.dir, "dir", "C", ".", "project directory")
	flags.BoolVarP(&c.yes, "yes", "y", false, "answer yes to every prompt")
	flags.BoolVar(&c.offline, "offline", false, "resolve from the lookup cache only")

	// Register all subcommands
	root.AddCommand(c.installCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.linkCommand())
	root.AddCommand(c.checkoutCommand())
	root.AddCommand(c.uninstallCommand())
	root.AddCommand(c.cleanCommand())
	root.AddCommand(c.treeCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.authCommand())
	root.AddCommand(c.completionCommand())
	root.AddCommand(c.versionCommand())

	return root
}

// versionCommand prints the build information.
func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

// ErrorMessage formats err for the terminal. User errors are shown without
// their code; operational errors keep the full causal chain.
func ErrorMessage(err error) string {
	if errors.IsUserError(err) {
		return styleIconError.Render(iconError) + " " + errors.UserMessage(err)
	}
	return styleIconError.Render(iconError) + " " + err.Error()
}
