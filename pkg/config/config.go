// Package config loads the stackpm user configuration.
//
// The file is TOML, read from $STACKPM_CONFIG or
// $XDG_CONFIG_HOME/stackpm/config.toml (~/.config/stackpm/config.toml when
// XDG_CONFIG_HOME is unset). A missing file yields the defaults; unknown
// keys are rejected.
//
//	cache_dir = "/var/cache/stackpm"
//	default_registry = "npm"
//	timeout = "30s"
//
//	[lookup_cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//
//	[registries.npm]
//	url = "https://npm.example.com/"
//	token = "..."
package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackpm/pkg/errors"
)

const (
	appName = "stackpm"

	// EnvPath overrides the config file location.
	EnvPath = "STACKPM_CONFIG"
)

// Lookup cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Registry endpoint types.
const (
	TypeNPM    = "npm"
	TypeGitHub = "github"
)

// Duration is a time.Duration written as a string ("30s", "168h").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the user configuration.
type Config struct {
	CacheDir        string `toml:"cache_dir"`
	DefaultRegistry string `toml:"default_registry"`
	Offline         bool   `toml:"offline"`
	PreferUnstable  bool   `toml:"prefer_unstable"`
	Dedupe          bool   `toml:"dedupe"`

	// StrictSSL verifies TLS certificates.
	StrictSSL bool     `toml:"strict_ssl"`
	Timeout   Duration `toml:"timeout"`
	Retries   int      `toml:"retries"`

	LookupCache LookupCache         `toml:"lookup_cache"`
	Registries  map[string]Registry `toml:"registries"`
}

// LookupCache configures where registry lookups are cached.
type LookupCache struct {
	Backend  string   `toml:"backend"`
	TTL      Duration `toml:"ttl"`
	RedisURL string   `toml:"redis_url"`
}

// Registry configures one registry endpoint.
type Registry struct {
	Type  string `toml:"type"`
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cacheDir, _ := defaultCacheDir()
	return &Config{
		CacheDir:        cacheDir,
		DefaultRegistry: TypeNPM,
		Dedupe:          true,
		StrictSSL:       true,
		Timeout:         Duration{60 * time.Second},
		Retries:         3,
		LookupCache: LookupCache{
			Backend: BackendFile,
			TTL:     Duration{7 * 24 * time.Hour},
		},
		Registries: map[string]Registry{
			TypeNPM:    {Type: TypeNPM},
			TypeGitHub: {Type: TypeGitHub},
		},
	}
}

// Path returns the config file location.
func Path() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Dir returns the stackpm config directory.
func Dir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}

func defaultCacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// Load reads the config file at path over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read %s", path)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", path)
	}
	return cfg, nil
}

// normalize fills registry types implied by their names and expands "~"
// in the cache directory.
func (c *Config) normalize() {
	for name, r := range c.Registries {
		if r.Type == "" && (name == TypeNPM || name == TypeGitHub) {
			r.Type = name
			c.Registries[name] = r
		}
	}
	if rest, ok := strings.CutPrefix(c.CacheDir, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			c.CacheDir = filepath.Join(home, rest)
		}
	}
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir is empty")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	switch c.LookupCache.Backend {
	case BackendFile, BackendNone:
	case BackendRedis:
		if c.LookupCache.RedisURL == "" {
			return fmt.Errorf("lookup_cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lookup_cache.backend %q is not one of file, redis, none", c.LookupCache.Backend)
	}
	for _, name := range slices.Sorted(maps.Keys(c.Registries)) {
		r := c.Registries[name]
		if r.Type != TypeNPM && r.Type != TypeGitHub {
			return fmt.Errorf("registries.%s: type %q is not one of npm, github", name, r.Type)
		}
		if r.URL != "" {
			if err := errors.ValidateURL(r.URL); err != nil {
				return fmt.Errorf("registries.%s: %w", name, err)
			}
		}
	}
	if _, ok := c.Registries[c.DefaultRegistry]; !ok {
		return fmt.Errorf("default_registry %q is not configured", c.DefaultRegistry)
	}
	return nil
}

// LookupDir is where the file lookup cache lives.
func (c *Config) LookupDir() string { return filepath.Join(c.CacheDir, "lookups") }
