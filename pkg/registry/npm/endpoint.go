package npm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// DefaultURL is the public npm registry.
const DefaultURL = "https://registry.npmjs.org"

// Options configures an Endpoint.
type Options struct {
	URL   string // registry base URL (default DefaultURL)
	Token string // bearer token for the registry and its tarballs
}

// Endpoint looks packages up in an npm-compatible registry.
type Endpoint struct {
	client  *fetch.Client
	baseURL string
	token   string
}

// New creates an Endpoint using client for all requests.
func New(client *fetch.Client, opts Options) *Endpoint {
	base := strings.TrimSuffix(opts.URL, "/")
	if base == "" {
		base = DefaultURL
	}
	return &Endpoint{client: client, baseURL: base, token: opts.Token}
}

// BaseURL implements the lookup cache scoping contract.
func (e *Endpoint) BaseURL() string { return e.baseURL }

// AuthPrefix implements registry.Authorizer.
func (e *Endpoint) AuthPrefix() string { return e.baseURL + "/" }

// Auth supplies the configured token. A token the registry already rejected
// is not offered again.
func (e *Endpoint) Auth(_ context.Context, _ *url.URL, current fetch.Credentials, unauthorized http.Header) (fetch.Credentials, bool, error) {
	if e.token == "" {
		return fetch.Credentials{}, false, nil
	}
	creds := fetch.Credentials{Token: e.token}
	if unauthorized != nil && current == creds {
		return fetch.Credentials{}, false, nil
	}
	return creds, true, nil
}

// Lookup implements registry.Endpoint.
func (e *Endpoint) Lookup(ctx context.Context, name string, _ pkgname.Target) (*registry.LookupResult, error) {
	if err := errors.ValidateNpmPackageName(name); err != nil {
		return nil, err
	}
	var doc packument
	if err := e.client.GetJSON(ctx, e.packageURL(name), nil, &doc); err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	res := &registry.LookupResult{
		Versions: make(map[string]registry.Version, len(doc.Versions)),
		Tags:     doc.DistTags,
	}
	for version, d := range doc.Versions {
		if d.Dist.Tarball == "" {
			continue
		}
		res.Versions[version] = registry.Version{
			Source:     d.Dist.source(),
			Deprecated: extractField(d.Deprecated, "message"),
			Override:   d.Stackpm,
		}
	}
	return res, nil
}

// Resolve implements registry.Resolver for versions missing from a cached
// lookup: it fetches the single version document.
func (e *Endpoint) Resolve(ctx context.Context, name, version string) (*registry.Version, error) {
	var d versionDetails
	if err := e.client.GetJSON(ctx, e.packageURL(name)+"/"+url.PathEscape(version), nil, &d); err != nil {
		return nil, err
	}
	return &registry.Version{
		Source:     d.Dist.source(),
		Deprecated: extractField(d.Deprecated, "message"),
		Override:   d.Stackpm,
	}, nil
}

// packageURL escapes the scope separator: "@scope/pkg" becomes "@scope%2Fpkg".
func (e *Endpoint) packageURL(name string) string {
	return e.baseURL + "/" + url.PathEscape(name)
}

func extractField(v any, field string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[field].(string); ok {
			return s
		}
	}
	return ""
}

type packument struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]versionDetails `json:"versions"`
}

type versionDetails struct {
	Version    string         `json:"version"`
	Deprecated any            `json:"deprecated"`
	Dist       dist           `json:"dist"`
	Stackpm    map[string]any `json:"stackpm"`
}

type dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity"`
	Shasum    string `json:"shasum"`
}

// source is the tarball locator with the strongest digest available.
func (d dist) source() string {
	switch {
	case d.Integrity != "":
		return d.Tarball + "#" + d.Integrity
	case d.Shasum != "":
		return d.Tarball + "#" + d.Shasum
	}
	return d.Tarball
}
