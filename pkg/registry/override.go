package registry

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/matzehuels/stackpm/pkg/pkgname"
)

// Override is a configuration patch for the packages its target matches.
type Override struct {
	Target pkgname.Ref
	Config map[string]any

	// Fresh marks overrides produced during the current operation that are
	// not yet saved in the project manifest.
	Fresh bool
}

// Merge deep-merges patch onto base and returns a new map. At every key the
// patch value wins; a nil value deletes the key; two objects merge
// recursively. Conditional maps such as "exports" follow the same rule,
// with no special treatment of a "default" key.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = deepCopy(v)
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		pm, pok := v.(map[string]any)
		bm, bok := out[k].(map[string]any)
		if pok && bok {
			out[k] = Merge(bm, pm)
			continue
		}
		out[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	}
	return v
}

// canonicalConfig renders cfg with sorted keys at every level.
func canonicalConfig(cfg map[string]any) []byte {
	if len(cfg) == 0 {
		return nil
	}
	data, _ := json.Marshal(cfg)
	return data
}

// MatchOverride picks the override for an installed package. An override
// targeting the exact source locator wins; otherwise the narrowest target
// range accepting exact wins. Ties go to the lexically first target.
func MatchOverride(overrides []Override, exact pkgname.Exact, source string) *Override {
	var matches []*Override
	for i := range overrides {
		o := &overrides[i]
		switch t := o.Target.(type) {
		case pkgname.Resource:
			if source != "" && t.Locator == source {
				return o
			}
		case pkgname.Target:
			if t.Has(exact) {
				matches = append(matches, o)
			}
		}
	}
	if len(matches) == 0 {
		return nil
	}
	slices.SortFunc(matches, func(a, b *Override) int {
		switch {
		case a.Target.String() < b.Target.String():
			return -1
		case a.Target.String() > b.Target.String():
			return 1
		}
		return 0
	})
	best := matches[0]
	for _, o := range matches[1:] {
		if o.Target.(pkgname.Target).Contains(best.Target.(pkgname.Target)) {
			continue
		}
		if best.Target.(pkgname.Target).Contains(o.Target.(pkgname.Target)) {
			best = o
		}
	}
	return best
}

// LayerOverride layers a user override on a registry-provided patch. The
// result is fresh when it differs from what the user already has.
func LayerOverride(exact pkgname.Exact, registry map[string]any, user *Override) *Override {
	if len(registry) == 0 {
		return user
	}
	var userCfg map[string]any
	if user != nil {
		userCfg = user.Config
	}
	merged := Merge(registry, userCfg)
	if user != nil && bytes.Equal(canonicalConfig(merged), canonicalConfig(userCfg)) {
		return user
	}
	target, err := pkgname.NewTarget(exact.Registry, exact.Name.Name, exact.Version)
	if err != nil {
		target = pkgname.PinTarget(exact)
	}
	if user != nil {
		if t, ok := user.Target.(pkgname.Target); ok {
			target = t
		}
	}
	return &Override{Target: target, Config: merged, Fresh: true}
}
