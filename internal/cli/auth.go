package cli

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/config"
	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/registry/github"
	"github.com/matzehuels/stackpm/pkg/registry/npm"
)

// authCommand creates the auth command with subcommands.
func (c *CLI) authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage registry credentials",
		Long: `Store and remove access tokens for registries.

Tokens are stored per origin in ~/.config/stackpm/credentials/, readable by
the owner only. Tokens from config.toml take precedence; git credential
helpers are consulted last.`,
	}

	cmd.AddCommand(c.authLoginCommand())
	cmd.AddCommand(c.authLogoutCommand())
	cmd.AddCommand(c.authStatusCommand())

	return cmd
}

// authLoginCommand creates the login subcommand.
func (c *CLI) authLoginCommand() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login <registry|url>",
		Short: "Store an access token for a registry",
		Long: `Store an access token for a configured registry name or a URL.
Without --token the token is read from stdin.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRegistries,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			origin, err := c.registryOrigin(args[0])
			if err != nil {
				return err
			}
			if token == "" {
				if token, err = readToken(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			store, err := credentialStore()
			if err != nil {
				return err
			}
			if err := store.Set(ctx, origin, fetch.Credentials{Token: token}); err != nil {
				return err
			}
			printSuccess("Logged in to %s", StyleLink.Render(origin))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "access token")
	return cmd
}

// authLogoutCommand creates the logout subcommand.
func (c *CLI) authLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "logout <registry|url>",
		Short:             "Remove the stored token for a registry",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeRegistries,
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := c.registryOrigin(args[0])
			if err != nil {
				return err
			}
			store, err := credentialStore()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), origin); err != nil {
				return fmt.Errorf("delete credentials: %w", err)
			}
			printSuccess("Logged out of %s", StyleLink.Render(origin))
			return nil
		},
	}
}

// authStatusCommand creates the status subcommand.
func (c *CLI) authStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which registries have credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			store, err := credentialStore()
			if err != nil {
				return err
			}
			for _, name := range slices.Sorted(maps.Keys(cfg.Registries)) {
				r := cfg.Registries[name]
				origin, err := fetch.Origin(registryURL(r))
				if err != nil {
					return err
				}
				status := StyleDim.Render("anonymous")
				switch {
				case r.Token != "":
					status = StyleSuccess.Render("token (config)")
				default:
					if _, ok, err := store.Get(cmd.Context(), origin); err == nil && ok {
						status = StyleSuccess.Render("token (stored)")
					}
				}
				printKeyValue(name, origin+" "+status)
			}
			return nil
		},
	}
}

// registryOrigin maps a configured registry name or a URL to the origin
// its credentials are stored under.
func (c *CLI) registryOrigin(arg string) (string, error) {
	if strings.Contains(arg, "://") {
		if err := errors.ValidateURL(arg); err != nil {
			return "", err
		}
		return fetch.Origin(arg)
	}
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	r, ok := cfg.Registries[arg]
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidInput, "unknown registry %q", arg)
	}
	return fetch.Origin(registryURL(r))
}

// registryURL returns the configured URL or the default of the registry type.
func registryURL(r config.Registry) string {
	if r.URL != "" {
		return r.URL
	}
	if r.Type == config.TypeGitHub {
		return github.DefaultURL
	}
	return npm.DefaultURL
}

func credentialStore() (*fetch.Store, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return fetch.NewStore(filepath.Join(dir, "credentials"))
}

// readToken reads the first line of r.
func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "empty token")
	}
	return token, nil
}
