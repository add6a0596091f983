package pkgname

import (
	"path"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// Ref is what an install points at: a registry Target or a Resource locator.
type Ref interface {
	String() string
	isRef()
}

var (
	_ Ref = Target{}
	_ Ref = Resource{}
)

// Resource is a source locator installed directly, without a registry
// lookup: a git repository, a tarball URL or a local link.
type Resource struct {
	Locator string
}

func (Resource) isRef() {}

func (r Resource) String() string { return r.Locator }

// Scheme returns the locator scheme, e.g. "git+https" or "link".
func (r Resource) Scheme() string {
	if i := strings.Index(r.Locator, ":"); i > 0 {
		return r.Locator[:i]
	}
	return ""
}

// InstallName infers a package name from the locator path: the last path
// segment without ".git", archive extensions or a ref fragment.
func (r Resource) InstallName() string {
	loc, _, _ := strings.Cut(r.Locator, "#")
	if i := strings.Index(loc, "://"); i >= 0 {
		loc = loc[i+3:]
	} else if i := strings.Index(loc, ":"); i >= 0 {
		loc = loc[i+1:]
	}
	loc, _, _ = strings.Cut(loc, "?")
	base := path.Base(strings.TrimRight(strings.ReplaceAll(loc, "\\", "/"), "/"))
	for _, ext := range []string{".git", ".tar.gz", ".tgz", ".tar"} {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// IsLocator reports whether s is a source locator rather than a target.
func IsLocator(s string) bool {
	for _, p := range []string{"git:", "git+", "link:", "file:", "http:", "https:"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return strings.Contains(s, "://")
}

// ParseRef parses a fully qualified target or locator.
func ParseRef(s string) (Ref, error) {
	if IsLocator(s) {
		return Resource{Locator: s}, nil
	}
	return ParseTarget(s)
}

// ParseDeclared parses a dependency value as written in a manifest under
// installName. Bare ranges refer to installName on defaultRegistry; values
// with a registry prefix are full targets; locators are resources; bare
// paths become link locators.
func ParseDeclared(installName, value, defaultRegistry string) (Ref, error) {
	value = strings.TrimSpace(value)
	switch {
	case IsLocator(value):
		return Resource{Locator: value}, nil
	case errors.LooksLikePath(value):
		return Resource{Locator: "link:" + value}, nil
	}
	if i := strings.IndexByte(value, ':'); i > 0 && registryRe.MatchString(value[:i]) {
		return ParseTarget(value)
	}
	return NewTarget(defaultRegistry, installName, value)
}
