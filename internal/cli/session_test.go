package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/config"
	"github.com/matzehuels/stackpm/pkg/observability"
)

// testCLI returns a CLI whose config lives in a temporary directory.
func testCLI(t *testing.T, body string) (*CLI, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv(config.EnvPath, "")

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c := New(&bytes.Buffer{}, LogInfo)
	c.configPath = path
	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	return c, cfg
}

// newTestRoot builds the root command for c, pointing --config at the
// file testCLI wrote.
func newTestRoot(c *CLI, args ...string) *cobra.Command {
	path := c.configPath
	root := NewRoot(c)
	root.SetArgs(append([]string{"--config", path}, args...))
	return root
}

func TestLoadConfigOfflineFlag(t *testing.T) {
	c, cfg := testCLI(t, "")
	if cfg.Offline {
		t.Fatal("offline without flag")
	}
	c.offline = true
	cfg, err := c.loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Offline {
		t.Error("--offline not applied")
	}
}

func TestLoadConfigDefaultsUnderXDG(t *testing.T) {
	_, cfg := testCLI(t, "")
	want := filepath.Join(os.Getenv("XDG_CACHE_HOME"), appName)
	if cfg.CacheDir != want {
		t.Errorf("cache dir = %q, want %q", cfg.CacheDir, want)
	}
}

func TestNewLookupCache(t *testing.T) {
	_, cfg := testCLI(t, "")

	lookups, err := newLookupCache(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	fc, ok := lookups.(*cache.FileCache)
	if !ok {
		t.Fatalf("lookups = %T, want *cache.FileCache", lookups)
	}
	if fc.Dir() != cfg.LookupDir() {
		t.Errorf("dir = %q, want %q", fc.Dir(), cfg.LookupDir())
	}

	cfg.LookupCache.Backend = config.BackendNone
	lookups, err = newLookupCache(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lookups.(*cache.NullCache); !ok {
		t.Errorf("lookups = %T, want *cache.NullCache", lookups)
	}
}

func TestNewLookupCacheRedis(t *testing.T) {
	url := os.Getenv("STACKPM_REDIS_URL")
	if url == "" {
		t.Skip("STACKPM_REDIS_URL not set")
	}
	_, cfg := testCLI(t, "")
	cfg.LookupCache.Backend = config.BackendRedis
	cfg.LookupCache.RedisURL = url

	lookups, err := newLookupCache(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer lookups.Close()
	if _, ok := lookups.(*cache.RedisCache); !ok {
		t.Errorf("lookups = %T, want *cache.RedisCache", lookups)
	}
}

func TestNewBackendRegistersEndpoints(t *testing.T) {
	c, cfg := testCLI(t, `
[registries.internal]
type = "npm"
url = "https://npm.internal.example.com"
`)
	be, err := newBackend(context.Background(), cfg, observability.Hooks{}, c.Logger)
	if err != nil {
		t.Fatal(err)
	}
	defer be.Close()

	for _, name := range []string{"npm", "github", "internal"} {
		if _, err := be.registry.Endpoint(name); err != nil {
			t.Errorf("Endpoint(%q) error: %v", name, err)
		}
	}
	if _, err := be.registry.Endpoint("pypi"); err == nil {
		t.Error("unconfigured registry registered")
	}
	if want := filepath.Join(cfg.CacheDir, "packages"); be.registry.StoreDir() != want {
		t.Errorf("store = %q, want %q", be.registry.StoreDir(), want)
	}
}

func TestOpenSessionLocksProject(t *testing.T) {
	c, _ := testCLI(t, "")
	c.dir = t.TempDir()

	s, err := c.openSession(context.Background(), observability.Hooks{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.openSession(context.Background(), observability.Hooks{}); err == nil {
		t.Error("second session on a locked project succeeded")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = c.openSession(context.Background(), observability.Hooks{})
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	s.Close()
}

func TestHooksFollowVerbosity(t *testing.T) {
	c := New(&bytes.Buffer{}, LogInfo)
	if h := c.hooks(nil); h.Install != nil || h.HTTP != nil {
		t.Error("hooks installed at info level")
	}
	act := &activity{}
	if h := c.hooks(act); h.Install != observability.InstallHooks(act) {
		t.Error("activity not installed at info level")
	}

	c.SetLogLevel(LogDebug)
	h := c.hooks(act)
	if h.HTTP == nil {
		t.Error("no HTTP hooks at debug level")
	}
	h.Install.OnLink(context.Background(), "npm:left@1.0.0", "/tmp/left")
	if got := act.parts(); len(got) != 1 || got[0] != "1 linked" {
		t.Errorf("activity = %v, want one link", got)
	}
}
