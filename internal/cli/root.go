package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the stackpm CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
func Execute(ctx context.Context) error {
	return NewRoot(New(os.Stderr, LogInfo)).ExecuteContext(ctx)
}

// NewRoot returns the root command of c with the --verbose flag wired to
// the logger level.
func NewRoot(c *CLI) *cobra.Command {
	var verbose bool

	root := c.RootCommand()
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	preRun := root.PersistentPreRun
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			c.SetLogLevel(LogDebug)
		}
		if preRun != nil {
			preRun(cmd, args)
		}
	}
	return root
}
