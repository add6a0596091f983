package source

import (
	"fmt"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// Kind classifies a locator by the protocol that handles it.
type Kind int

const (
	// KindRegistry locators are opaque and resolved by a registry endpoint.
	KindRegistry Kind = iota
	// KindTarball locators are http(s) URLs of tar or tar.gz archives.
	KindTarball
	// KindGit locators name a git repository and a ref or commit.
	KindGit
	// KindLink locators point at a local directory.
	KindLink
	// KindFile locators point at a local directory or archive.
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindTarball:
		return "tarball"
	case KindGit:
		return "git"
	case KindLink:
		return "link"
	case KindFile:
		return "file"
	}
	return "registry"
}

// Locator is a parsed "scheme:opaque[#fragment]" source string.
type Locator struct {
	Scheme   string
	Opaque   string
	Fragment string
}

// ParseLocator splits s into scheme, opaque part and fragment.
func ParseLocator(s string) (Locator, error) {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return Locator{}, errors.New(errors.ErrCodeInvalidTarget, "invalid source %q: missing scheme", s)
	}
	l := Locator{Scheme: strings.ToLower(s[:i])}
	l.Opaque, l.Fragment, _ = strings.Cut(s[i+1:], "#")
	if l.Opaque == "" {
		return Locator{}, errors.New(errors.ErrCodeInvalidTarget, "invalid source %q: empty location", s)
	}
	return l, nil
}

// MustParseLocator is like ParseLocator but panics on error.
func MustParseLocator(s string) Locator {
	l, err := ParseLocator(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String reassembles the locator.
func (l Locator) String() string {
	s := l.Scheme + ":" + l.Opaque
	if l.Fragment != "" {
		s += "#" + l.Fragment
	}
	return s
}

// Kind reports which protocol handles the locator.
func (l Locator) Kind() Kind {
	switch l.Scheme {
	case "http", "https":
		return KindTarball
	case "git", "git+ssh", "git+https", "git+http", "git+file":
		return KindGit
	case "link":
		return KindLink
	case "file":
		return KindFile
	}
	return KindRegistry
}

// WithFragment returns a copy with the fragment replaced.
func (l Locator) WithFragment(f string) Locator {
	l.Fragment = f
	return l
}

// Path returns the filesystem path of link and file locators.
func (l Locator) Path() string {
	if l.Kind() == KindFile {
		return strings.TrimPrefix(l.Opaque, "//")
	}
	return l.Opaque
}

// URL returns the transport URL: the locator without fragment, with any
// "git+" prefix removed.
func (l Locator) URL() string {
	scheme := strings.TrimPrefix(l.Scheme, "git+")
	return scheme + ":" + l.Opaque
}

// validate checks kind-specific shape.
func (l Locator) validate() error {
	switch l.Kind() {
	case KindTarball, KindGit:
		if l.Scheme != "git+file" && !strings.HasPrefix(l.Opaque, "//") {
			return fmt.Errorf("%s locator %q must be a URL", l.Kind(), l.String())
		}
	}
	return nil
}
