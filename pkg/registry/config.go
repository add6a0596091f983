package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// ConfigFile is the package configuration file name.
const ConfigFile = "package.json"

// Dependency sections of a package configuration.
const (
	SectionDependencies         = "dependencies"
	SectionDevDependencies      = "devDependencies"
	SectionPeerDependencies     = "peerDependencies"
	SectionOptionalDependencies = "optionalDependencies"
)

// PackageConfig is the normalized configuration of an installed package.
type PackageConfig struct {
	Name       string
	Version    string
	Deprecated string

	// Bin maps command names to package-relative script paths. A string
	// "bin" field is keyed by the package's base name.
	Bin map[string]string

	Dependencies         map[string]string
	DevDependencies      map[string]string
	PeerDependencies     map[string]string
	OptionalDependencies map[string]string

	raw map[string]any
}

// ParseConfig normalizes a decoded package.json.
func ParseConfig(raw map[string]any) (*PackageConfig, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	c := &PackageConfig{raw: raw}
	c.Name, _ = raw["name"].(string)
	c.Version, _ = raw["version"].(string)
	c.Deprecated, _ = raw["deprecated"].(string)

	var err error
	sections := []struct {
		key string
		dst *map[string]string
	}{
		{SectionDependencies, &c.Dependencies},
		{SectionDevDependencies, &c.DevDependencies},
		{SectionPeerDependencies, &c.PeerDependencies},
		{SectionOptionalDependencies, &c.OptionalDependencies},
	}
	for _, s := range sections {
		if *s.dst, err = stringMap(raw[s.key]); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", s.key)
		}
	}

	switch bin := raw["bin"].(type) {
	case nil:
	case string:
		if c.Name != "" {
			c.Bin = map[string]string{path.Base(c.Name): bin}
		}
	default:
		if c.Bin, err = stringMap(bin); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "bin")
		}
	}
	return c, nil
}

func stringMap(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%q: expected a string, got %T", k, v)
		}
		out[k] = s
	}
	return out, nil
}

// Raw returns the configuration as decoded. Callers must not modify it.
func (c *PackageConfig) Raw() map[string]any { return c.raw }

// Section returns the named dependency section.
func (c *PackageConfig) Section(name string) map[string]string {
	switch name {
	case SectionDependencies:
		return c.Dependencies
	case SectionDevDependencies:
		return c.DevDependencies
	case SectionPeerDependencies:
		return c.PeerDependencies
	case SectionOptionalDependencies:
		return c.OptionalDependencies
	}
	return nil
}

// Apply returns the configuration with patch merged on top.
func (c *PackageConfig) Apply(patch map[string]any) (*PackageConfig, error) {
	return ParseConfig(Merge(c.raw, patch))
}

// ReadConfig reads the package.json in dir. A directory without one has an
// empty configuration.
func ReadConfig(dir string) (*PackageConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if os.IsNotExist(err) {
		return ParseConfig(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read package config: %w", err)
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", filepath.Join(dir, ConfigFile))
	}
	return ParseConfig(raw)
}

func writeConfig(dir string, raw map[string]any) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal package config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFile), append(data, '\n'), 0o644)
}
