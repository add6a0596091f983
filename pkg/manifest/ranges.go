package manifest

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// DepType classifies a dependency edge.
type DepType int

const (
	Primary DepType = iota
	Dev
	Peer
	Optional
	Secondary
)

func (t DepType) String() string {
	switch t {
	case Primary:
		return "primary"
	case Dev:
		return "dev"
	case Peer:
		return "peer"
	case Optional:
		return "optional"
	}
	return "secondary"
}

// Section returns the manifest section holding edges of type t. Secondary
// edges live in package configurations, not in the manifest.
func (t DepType) Section() string {
	switch t {
	case Primary:
		return registry.SectionDependencies
	case Dev:
		return registry.SectionDevDependencies
	case Peer:
		return registry.SectionPeerDependencies
	case Optional:
		return registry.SectionOptionalDependencies
	}
	return ""
}

// sectionOrder lists sections from lowest to highest precedence: a name
// declared in several sections takes the type of the last one.
var sectionOrder = []DepType{Dev, Optional, Peer, Primary}

// PrimaryRange is a direct dependency declared in the manifest.
type PrimaryRange struct {
	Type   DepType
	Target pkgname.Ref
}

// PrimaryRanges returns the direct dependencies by install name.
func (m *Manifest) PrimaryRanges(defaultRegistry string) (map[string]PrimaryRange, error) {
	out := make(map[string]PrimaryRange)
	for _, typ := range sectionOrder {
		v, ok := m.Get(typ.Section())
		if !ok {
			continue
		}
		section, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "%s must be an object", typ.Section())
		}
		for name, value := range section {
			s, ok := value.(string)
			if !ok {
				return nil, errors.New(errors.ErrCodeInvalidManifest, "%s.%s must be a string", typ.Section(), name)
			}
			ref, err := pkgname.ParseDeclared(name, s, defaultRegistry)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s.%s", typ.Section(), name)
			}
			out[name] = PrimaryRange{Type: typ, Target: ref}
		}
	}
	return out, nil
}

// SetPrimaryRange declares name in the section of r.Type and removes it from
// every other section.
func (m *Manifest) SetPrimaryRange(name string, r PrimaryRange, defaultRegistry string) {
	for _, typ := range sectionOrder {
		if typ != r.Type {
			m.Set(nil, typ.Section(), name)
		}
	}
	m.Set(FormatRef(name, r.Target, defaultRegistry), r.Type.Section(), name)
}

// RemovePrimaryRange removes name from every section. It reports whether
// anything was removed.
func (m *Manifest) RemovePrimaryRange(name string) bool {
	removed := false
	for _, typ := range sectionOrder {
		if _, ok := m.Get(typ.Section(), name); ok {
			m.Set(nil, typ.Section(), name)
			removed = true
		}
	}
	return removed
}

// FormatRef renders a reference the way it is declared under name.
func FormatRef(name string, ref pkgname.Ref, defaultRegistry string) string {
	switch r := ref.(type) {
	case pkgname.Target:
		return r.Format(name, defaultRegistry)
	case pkgname.Resource:
		return r.Locator
	}
	return ref.String()
}

// Overrides returns the override list. Keys without a registry prefix refer
// to defaultRegistry.
func (m *Manifest) Overrides(defaultRegistry string) ([]registry.Override, error) {
	v, ok := m.Get("overrides")
	if !ok {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "overrides must be an object")
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]registry.Override, 0, len(keys))
	for _, key := range keys {
		cfg, ok := obj[key].(map[string]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidManifest, "overrides[%q] must be an object", key)
		}
		ref, err := parseOverrideKey(key, defaultRegistry)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "overrides[%q]", key)
		}
		out = append(out, registry.Override{Target: ref, Config: cfg})
	}
	return out, nil
}

func parseOverrideKey(key, defaultRegistry string) (pkgname.Ref, error) {
	if pkgname.IsLocator(key) || strings.Contains(key, ":") {
		return pkgname.ParseRef(key)
	}
	name, rng := key, ""
	if i := strings.LastIndexByte(key, '@'); i > 0 {
		name, rng = key[:i], key[i+1:]
	}
	return pkgname.NewTarget(defaultRegistry, name, rng)
}

// SetOverride records an override under its target string.
func (m *Manifest) SetOverride(o registry.Override) {
	if o.Target == nil {
		return
	}
	m.Set(o.Config, "overrides", o.Target.String())
}

// String implements fmt.Stringer for debugging.
func (t PrimaryRange) String() string {
	return fmt.Sprintf("%s %s", t.Type, t.Target)
}
