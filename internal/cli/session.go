package cli

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/config"
	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/registry/github"
	"github.com/matzehuels/stackpm/pkg/registry/npm"
)

// session bundles everything one command needs to run an operation.
type session struct {
	cfg       *config.Config
	project   *install.Project
	installer *install.Installer
	prompter  *terminalPrompter
	backend   *backend
}

// backend is the project-independent half of a session: the HTTP client,
// the lookup cache and the registry manager.
type backend struct {
	client   *fetch.Client
	lookups  cache.Cache
	registry *registry.Manager
}

func (b *backend) Close() error {
	err := b.lookups.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// loadConfig reads the config file and applies the global flags.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return nil, fmt.Errorf("locate config: %w", err)
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.offline {
		cfg.Offline = true
	}
	c.Logger.Debug("loaded config", "path", path, "cache", cfg.CacheDir, "offline", cfg.Offline)
	return cfg, nil
}

// hooks returns the hooks for one operation. act, when set, receives the
// install events; verbose mode also logs every event.
func (c *CLI) hooks(act *activity) observability.Hooks {
	var h observability.Hooks
	if c.verbose() {
		h = observability.NewLogHooks(c.Logger).All()
	}
	if act != nil {
		h.Install = observability.MultiInstallHooks(h.Install, act)
	}
	return h
}

// openSession loads the config, locks the project and wires an installer
// reporting to hooks.
func (c *CLI) openSession(ctx context.Context, hooks observability.Hooks) (*session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(c.dir)
	if err != nil {
		return nil, err
	}

	be, err := newBackend(ctx, cfg, hooks, c.Logger)
	if err != nil {
		return nil, err
	}
	project, err := install.OpenProject(dir)
	if err != nil {
		be.Close()
		return nil, err
	}

	prompter := newTerminalPrompter(c.yes)
	inst := install.New(install.Config{
		Project:         project,
		Registry:        be.registry,
		Prompter:        prompter,
		DefaultRegistry: cfg.DefaultRegistry,
		Hooks:           hooks,
		Logger:          c.Logger,
	})
	return &session{cfg: cfg, project: project, installer: inst, prompter: prompter, backend: be}, nil
}

// Close releases the project lock and the backend.
func (s *session) Close() error {
	err := s.project.Close()
	if berr := s.backend.Close(); err == nil {
		err = berr
	}
	return err
}

// options returns the install options implied by the config.
func (s *session) options() install.Options {
	return install.Options{
		Dedupe:         s.cfg.Dedupe,
		PreferUnstable: s.cfg.PreferUnstable,
	}
}

// newBackend builds the HTTP client, lookup cache and registry manager
// described by cfg.
func newBackend(ctx context.Context, cfg *config.Config, hooks observability.Hooks, logger *log.Logger) (*backend, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	store, err := fetch.NewStore(filepath.Join(dir, "credentials"))
	if err != nil {
		return nil, err
	}
	client := fetch.NewClient(fetch.Options{
		Timeout:   cfg.Timeout.Duration,
		Retries:   cfg.Retries,
		Insecure:  !cfg.StrictSSL,
		UserAgent: appName,
		Store:     store,
		Helper:    fetch.GitHelper{},
		Hooks:     hooks,
		Logger:    logger,
	})

	lookups, err := newLookupCache(ctx, cfg)
	if err != nil {
		client.Close()
		return nil, err
	}

	mgr := registry.NewManager(registry.Options{
		CacheDir:  cfg.CacheDir,
		Offline:   cfg.Offline,
		Client:    client,
		Lookups:   lookups,
		LookupTTL: cfg.LookupCache.TTL.Duration,
		Hooks:     hooks,
		Logger:    logger,
	})
	registerEndpoints(mgr, client, cfg)
	return &backend{client: client, lookups: lookups, registry: mgr}, nil
}

// registerEndpoints registers every configured registry in name order.
func registerEndpoints(mgr *registry.Manager, client *fetch.Client, cfg *config.Config) {
	for _, name := range slices.Sorted(maps.Keys(cfg.Registries)) {
		r := cfg.Registries[name]
		switch r.Type {
		case config.TypeNPM:
			mgr.Register(name, npm.New(client, npm.Options{URL: r.URL, Token: r.Token}))
		case config.TypeGitHub:
			mgr.Register(name, github.New(nil, github.Options{URL: r.URL, Token: r.Token}))
		}
	}
}

// newLookupCache opens the configured lookup cache backend.
func newLookupCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch cfg.LookupCache.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		c, err := cache.NewRedisCache(ctx, cfg.LookupCache.RedisURL, appName+":")
		if err != nil {
			return nil, fmt.Errorf("open lookup cache: %w", err)
		}
		return c, nil
	default:
		c, err := cache.NewFileCache(cfg.LookupDir())
		if err != nil {
			return nil, fmt.Errorf("open lookup cache: %w", err)
		}
		return c, nil
	}
}
