package registry

import (
	"fmt"

	"github.com/matzehuels/stackpm/pkg/pkgname"
)

// selectVersion applies the version policy to a lookup result.
func selectVersion(res *LookupResult, target pkgname.Target, preferUnstable bool) (pkgname.Exact, Version, bool) {
	if res == nil {
		return pkgname.Exact{}, Version{}, false
	}
	pick := func(version string) (pkgname.Exact, Version, bool) {
		v, ok := res.Versions[version]
		if !ok {
			return pkgname.Exact{}, Version{}, false
		}
		e, err := pkgname.NewExact(target.Registry, target.Name, version)
		if err != nil {
			return pkgname.Exact{}, Version{}, false
		}
		return e, v, true
	}

	if target.IsTag() {
		if version, ok := res.Tags[target.Range]; ok {
			return pick(version)
		}
		return pick(target.Range)
	}
	if target.IsWildcard() {
		if version, ok := res.Tags["latest"]; ok {
			if e, v, ok := pick(version); ok && (!e.IsPrerelease() || preferUnstable) {
				return e, v, true
			}
		}
	}

	var best pkgname.Exact
	var bestVersion Version
	for version, v := range res.Versions {
		e, err := pkgname.NewExact(target.Registry, target.Name, version)
		if err != nil || !e.IsSemver() || !accepts(target, e, preferUnstable) {
			continue
		}
		if best.IsZero() || e.Compare(best) > 0 {
			best, bestVersion = e, v
		}
	}
	return best, bestVersion, !best.IsZero()
}

// accepts is Target.Has, widened to prereleases of accepted versions when
// unstable versions are preferred.
func accepts(target pkgname.Target, e pkgname.Exact, preferUnstable bool) bool {
	if target.Has(e) {
		return true
	}
	if !preferUnstable || !e.IsPrerelease() {
		return false
	}
	v := e.Semver()
	core, err := pkgname.NewExact(e.Registry, e.Name.Name, fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()))
	return err == nil && target.Has(core)
}
