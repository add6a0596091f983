package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the lookup cache and the package store",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear cached registry lookups",
		Long: `Clear cached registry lookups. With --store the global package store is
removed as well; projects relink their packages on the next install.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			lookups, err := newLookupCache(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer lookups.Close()

			switch l := lookups.(type) {
			case *cache.FileCache:
				if err := l.Clear(); err != nil {
					return fmt.Errorf("clear lookups: %w", err)
				}
				printSuccess("Cleared cached lookups")
				printDetail("Directory: %s", l.Dir())
			case *cache.RedisCache:
				if err := l.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear lookups: %w", err)
				}
				printSuccess("Cleared cached lookups")
				printDetail("Redis: %s", cfg.LookupCache.RedisURL)
			default:
				printInfo("Lookup cache is disabled")
			}

			if store {
				dir := registry.NewManager(registry.Options{CacheDir: cfg.CacheDir}).StoreDir()
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					printInfo("Store is empty")
					return nil
				}
				ok, err := newTerminalPrompter(c.yes).Confirm(cmd.Context(), "Remove the package store at "+dir+"?", false)
				if err != nil {
					return err
				}
				if !ok {
					printWarning("Keeping the package store")
					return nil
				}
				if err := os.RemoveAll(dir); err != nil {
					return fmt.Errorf("remove store: %w", err)
				}
				printSuccess("Removed the package store")
				printDetail("Directory: %s", dir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&store, "store", false, "also remove the package store")
	return cmd
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.CacheDir)
			return nil
		},
	}
}
