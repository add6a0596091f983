package pkgname

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// InvalidTargetError is returned for malformed version ranges.
type InvalidTargetError struct {
	Input  string
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return "invalid target " + quote(e.Input) + ": " + e.Reason
}

// Code returns the error code for this error type.
func (e *InvalidTargetError) Code() errors.Code { return errors.ErrCodeInvalidTarget }

// Target is a constraint on a package: a registry, a name and a version
// range. An empty or "*" range is a wildcard. A range that is not valid
// semver range syntax is a tag (e.g. "latest" or a branch) matched by
// equality.
type Target struct {
	Registry string
	Name     string
	Range    string

	set        versionSet
	constraint *semver.Constraints
	tag        bool
}

// NewTarget builds a target from its parts.
func NewTarget(registry, name, rng string) (Target, error) {
	t := Target{Registry: registry, Name: name, Range: strings.TrimSpace(rng)}
	input := registry + ":" + name + "@" + rng
	if !registryRe.MatchString(registry) {
		return Target{}, &InvalidNameError{Input: input, Reason: "invalid registry " + quote(registry)}
	}
	if err := validateName(name); err != nil {
		return Target{}, &InvalidNameError{Input: input, Reason: errors.UserMessage(err)}
	}
	if t.IsWildcard() {
		t.set = versionSet{{}}
		return t, nil
	}
	if !looksLikeRange(t.Range) {
		t.tag = true
		return t, nil
	}
	set, err := parseRange(t.Range)
	if err != nil {
		return Target{}, &InvalidTargetError{Input: input, Reason: err.Error()}
	}
	t.set = set
	// Masterminds does not know every npm form; the interval set covers the rest.
	if c, err := semver.NewConstraint(normalizeCaret(t.Range)); err == nil {
		t.constraint = c
	}
	return t, nil
}

// ParseTarget parses "registry:name[@range]".
func ParseTarget(s string) (Target, error) {
	n, err := Parse(s)
	if err != nil {
		return Target{}, err
	}
	return NewTarget(n.Registry, n.Name, n.Version)
}

// MustParseTarget is like ParseTarget but panics on error.
func MustParseTarget(s string) Target {
	t, err := ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// PinTarget returns the range recorded when installing e from a wildcard or
// tag: a caret range for stable releases, the exact version otherwise.
func PinTarget(e Exact) Target {
	rng := e.Version
	if e.IsSemver() && !e.IsPrerelease() {
		rng = "^" + e.Version
	}
	t, err := NewTarget(e.Registry, e.Name.Name, rng)
	if err != nil {
		// Exact names always form valid targets.
		panic(err)
	}
	return t
}

// looksLikeRange reports whether r should be parsed as a semver range rather
// than treated as a tag.
func looksLikeRange(r string) bool {
	if strings.ContainsAny(r, "^~<>=*| ") {
		return true
	}
	_, ok := parsePartial(r)
	return ok
}

// normalizeCaret rewrites ^0.y.z (y > 0, no prerelease) as ~0.y.z.
func normalizeCaret(r string) string {
	fields := strings.Fields(r)
	for i, f := range fields {
		if !strings.HasPrefix(f, "^") {
			continue
		}
		p, ok := parsePartial(f[1:])
		if ok && p.parts >= 2 && p.major == 0 && p.minor > 0 && p.pre == "" {
			fields[i] = "~" + f[1:]
		}
	}
	return strings.Join(fields, " ")
}

func (Target) isRef() {}

// String returns "registry:name@range", omitting a wildcard range.
func (t Target) String() string {
	if t.IsWildcard() {
		return t.Registry + ":" + t.Name
	}
	return t.Registry + ":" + t.Name + "@" + t.Range
}

// Package returns "registry:name".
func (t Target) Package() string { return t.Registry + ":" + t.Name }

// InstallName is the default name the package is installed under.
func (t Target) InstallName() string {
	return Name{Registry: t.Registry, Name: t.Name}.InstallName()
}

// IsWildcard reports whether the target accepts any stable version.
func (t Target) IsWildcard() bool {
	return t.Range == "" || t.Range == "*" || t.Range == "x" || t.Range == "X"
}

// IsTag reports whether the range is an opaque tag.
func (t Target) IsTag() bool { return t.tag }

// IsExact reports whether the range names a single version.
func (t Target) IsExact() bool {
	if t.tag {
		return true
	}
	if len(t.set) != 1 {
		return false
	}
	iv := t.set[0]
	return iv.lo != nil && iv.hi != nil && iv.lo.Equal(iv.hi) && iv.loInc && iv.hiInc
}

// wantsPrerelease reports whether the range itself names a prerelease.
func (t Target) wantsPrerelease() bool {
	for _, iv := range t.set {
		if iv.lo != nil && iv.lo.Prerelease() != "" || iv.hi != nil && iv.hi.Prerelease() != "" {
			return true
		}
	}
	return false
}

// Has reports whether e satisfies the target. Prereleases only match when
// the range names a prerelease. Tags match by equality.
func (t Target) Has(e Exact) bool {
	if e.Registry != t.Registry || e.Name.Name != t.Name {
		return false
	}
	if t.tag || !e.IsSemver() {
		return t.Range == e.Version
	}
	if t.IsWildcard() {
		return !e.IsPrerelease()
	}
	if t.constraint != nil {
		return t.constraint.Check(e.semver)
	}
	if e.IsPrerelease() && !t.wantsPrerelease() {
		return false
	}
	for _, iv := range t.set {
		if iv.has(e.semver) {
			return true
		}
	}
	return false
}

// Contains reports whether every version accepted by o is accepted by t.
func (t Target) Contains(o Target) bool {
	if t.Registry != o.Registry || t.Name != o.Name {
		return false
	}
	if t.tag || o.tag {
		return t.Range == o.Range
	}
	if t.IsWildcard() {
		return true
	}
	return t.set.contains(o.set)
}

// Intersect returns the target accepted by both t and o. The second result
// is false when nothing satisfies both.
func (t Target) Intersect(o Target) (Target, bool) {
	if t.Registry != o.Registry || t.Name != o.Name {
		return Target{}, false
	}
	switch {
	case t.tag || o.tag:
		return t, t.Range == o.Range
	case t.Contains(o):
		return o, true
	case o.Contains(t):
		return t, true
	}
	set := t.set.intersect(o.set)
	if len(set) == 0 {
		return Target{}, false
	}
	out, err := NewTarget(t.Registry, t.Name, set.String())
	if err != nil {
		return Target{}, false
	}
	return out, true
}

// WithRegistry rebases the target onto another registry.
func (t Target) WithRegistry(registry string) (Target, error) {
	return NewTarget(registry, t.Name, t.Range)
}

// WithVersion replaces the range.
func (t Target) WithVersion(rng string) (Target, error) {
	return NewTarget(t.Registry, t.Name, rng)
}

// Format renders the target as it is declared in a project manifest under
// installName. The name is omitted when the package is installed under its
// own default name from the default registry.
func (t Target) Format(installName, defaultRegistry string) string {
	if installName == t.InstallName() && t.Registry == defaultRegistry {
		if t.IsWildcard() {
			return "*"
		}
		return t.Range
	}
	return t.String()
}

// MarshalText implements encoding.TextMarshaler.
func (t Target) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Target) UnmarshalText(b []byte) error {
	parsed, err := ParseTarget(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// InstallName is the default install name: scoped names keep their scope,
// path-like names use their last segment.
func (n Name) InstallName() string {
	if strings.HasPrefix(n.Name, "@") {
		return n.Name
	}
	return n.Base()
}
