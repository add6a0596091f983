package pkgname

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// rangeChars never appear in a concrete version or tag.
const rangeChars = " ^~<>=*|"

// Exact is a fully resolved package. Version is always concrete: a semantic
// version when the registry publishes one, otherwise an opaque tag such as a
// branch name or commit.
type Exact struct {
	Name
	semver *semver.Version
}

// NewExact builds an exact package, rejecting empty versions and ranges.
func NewExact(registry, name, version string) (Exact, error) {
	return ParseExact(registry + ":" + name + "@" + version)
}

// ParseExact parses "registry:name@version" where version is concrete.
func ParseExact(s string) (Exact, error) {
	n, err := Parse(s)
	if err != nil {
		return Exact{}, err
	}
	if n.Version == "" {
		return Exact{}, &InvalidNameError{Input: s, Reason: "exact package requires a version"}
	}
	if strings.ContainsAny(n.Version, rangeChars) {
		return Exact{}, &InvalidNameError{Input: s, Reason: "version " + quote(n.Version) + " is a range"}
	}
	return Exact{Name: n, semver: parseSemver(n.Version)}, nil
}

// MustParseExact is like ParseExact but panics on error.
func MustParseExact(s string) Exact {
	e, err := ParseExact(s)
	if err != nil {
		panic(err)
	}
	return e
}

func parseSemver(v string) *semver.Version {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(v, "v"))
	if err != nil {
		return nil
	}
	return sv
}

// Semver returns the parsed version, or nil for opaque tags.
func (e Exact) Semver() *semver.Version { return e.semver }

// IsSemver reports whether the version is a semantic version.
func (e Exact) IsSemver() bool { return e.semver != nil }

// IsPrerelease reports whether the version is a semver prerelease.
func (e Exact) IsPrerelease() bool {
	return e.semver != nil && e.semver.Prerelease() != ""
}

// IsZero reports whether e is the zero value.
func (e Exact) IsZero() bool { return e.Registry == "" && e.Name.Name == "" }

// Compare orders packages by registry, name, then version. Semantic versions
// sort above tags; tags compare lexically.
func (e Exact) Compare(o Exact) int {
	if c := strings.Compare(e.Registry, o.Registry); c != 0 {
		return c
	}
	if c := strings.Compare(e.Name.Name, o.Name.Name); c != 0 {
		return c
	}
	switch {
	case e.semver != nil && o.semver != nil:
		return e.semver.Compare(o.semver)
	case e.semver != nil:
		return 1
	case o.semver != nil:
		return -1
	}
	return strings.Compare(e.Version, o.Version)
}

// Equal reports whether both refer to the same package version.
func (e Exact) Equal(o Exact) bool { return e.Name == o.Name }

// MarshalText implements encoding.TextMarshaler.
func (e Exact) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Exact) UnmarshalText(b []byte) error {
	parsed, err := ParseExact(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
