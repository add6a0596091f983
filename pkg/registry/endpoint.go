package registry

import (
	"context"
	"net/http"
	"net/url"

	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/pkgname"
)

// Version is one published version of a package.
type Version struct {
	// Source is the locator of the version's contents. Endpoints implementing
	// Resolver may leave it empty.
	Source string `json:"source,omitempty"`

	// Deprecated holds the registry's deprecation notice, if any.
	Deprecated string `json:"deprecated,omitempty"`

	// Override is a registry-provided configuration patch. User overrides
	// are merged on top of it.
	Override map[string]any `json:"override,omitempty"`
}

// LookupResult is everything a registry publishes about one package.
type LookupResult struct {
	Versions map[string]Version `json:"versions"`
	Tags     map[string]string  `json:"tags,omitempty"`
}

// Endpoint is a registry implementation.
type Endpoint interface {
	// Lookup lists the versions of name. target is the range that prompted
	// the lookup; endpoints may use it to narrow their query. A package the
	// registry does not know is (nil, nil) or a NOT_FOUND error.
	Lookup(ctx context.Context, name string, target pkgname.Target) (*LookupResult, error)
}

// Resolver is implemented by endpoints whose lookups omit sources.
type Resolver interface {
	Resolve(ctx context.Context, name, version string) (*Version, error)
}

// Authorizer is implemented by endpoints that supply credentials for their
// own URLs. The Manager registers Auth with the fetch client for every URL
// starting with AuthPrefix.
type Authorizer interface {
	AuthPrefix() string
	Auth(ctx context.Context, u *url.URL, current fetch.Credentials, unauthorized http.Header) (fetch.Credentials, bool, error)
}

// baseURLer is implemented by endpoints backed by one URL; their lookup cache
// keys are scoped to it.
type baseURLer interface {
	BaseURL() string
}
