// Package pkgname models package identities and version constraints.
//
// Three shapes cover every reference to a package:
//
//   - [Name]: "registry:name[@version]" as typed by a user
//   - [Exact]: a resolved package whose version is concrete
//   - [Target]: a registry package constrained by a version range
//
// A [Ref] is either a [Target] or a [Resource] (git, tarball or link locator).
//
// # Ranges
//
// Ranges use npm syntax (caret, tilde, x-ranges, hyphen ranges, comparator
// sets joined by "||"). Matching is delegated to Masterminds/semver, while
// containment and intersection work on a union-of-intervals view of the
// range. Prereleases only match ranges that name a prerelease. A caret on
// 0.y.z behaves as ~0.y.z.
//
//	t := pkgname.MustParseTarget("npm:left@^1.2.0")
//	t.Has(pkgname.MustParseExact("npm:left@1.9.0")) // true
//	t.Has(pkgname.MustParseExact("npm:left@2.0.0")) // false
package pkgname
