package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/source"
)

// DefaultURL is the public GitHub host.
const DefaultURL = "https://github.com"

// Options configures an Endpoint.
type Options struct {
	URL   string // git host base URL (default DefaultURL)
	Token string // access token for private repositories
}

// RefLister lists remote refs. *source.Git implements it.
type RefLister interface {
	ListRefs(ctx context.Context, url string) ([]source.RemoteRef, error)
}

// Endpoint resolves packages from a git host.
type Endpoint struct {
	refs    RefLister
	baseURL string
	token   string
}

// New creates an Endpoint. A nil lister uses go-git with the endpoint token.
func New(refs RefLister, opts Options) *Endpoint {
	e := &Endpoint{baseURL: strings.TrimSuffix(opts.URL, "/"), token: opts.Token}
	if e.baseURL == "" {
		e.baseURL = DefaultURL
	}
	if refs == nil {
		refs = &source.Git{Auth: e.gitAuth}
	}
	e.refs = refs
	return e
}

func (e *Endpoint) gitAuth(context.Context, string) (string, string, bool) {
	if e.token == "" {
		return "", "", false
	}
	return "x-access-token", e.token, true
}

// BaseURL implements the lookup cache scoping contract.
func (e *Endpoint) BaseURL() string { return e.baseURL }

// AuthPrefix implements registry.Authorizer.
func (e *Endpoint) AuthPrefix() string { return e.baseURL + "/" }

// Auth supplies the configured token once per origin.
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

// RepoURL returns the clone URL of an owner/repo name.
func (e *Endpoint) RepoURL(name string) string {
	return e.baseURL + "/" + name + ".git"
}

// Lookup implements registry.Endpoint.
func (e *Endpoint) Lookup(ctx context.Context, name string, _ pkgname.Target) (*registry.LookupResult, error) {
	if err := errors.ValidateGitHubRepo(name); err != nil {
		return nil, err
	}
	repo := e.RepoURL(name)
	refs, err := e.refs.ListRefs(ctx, repo)
	if err != nil {
		return nil, err
	}

	res := &registry.LookupResult{
		Versions: make(map[string]registry.Version),
		Tags:     make(map[string]string),
	}
	locator := func(hash string) registry.Version {
		return registry.Version{Source: "git+" + repo + "#" + hash}
	}
	hasSemver := false
	var head string
	for _, ref := range refs {
		switch {
		case ref.Tag:
			if v, err := semver.StrictNewVersion(strings.TrimPrefix(ref.Name, "v")); err == nil {
				res.Versions[v.String()] = locator(ref.Hash)
				hasSemver = true
				continue
			}
			res.Versions[ref.Name] = locator(ref.Hash)
		case ref.Branch:
			if _, taken := res.Versions[ref.Name]; !taken {
				res.Versions[ref.Name] = locator(ref.Hash)
			}
		case ref.Name == "HEAD":
			head = ref.Hash
		}
	}
	if !hasSemver && head != "" {
		for _, ref := range refs {
			if ref.Branch && ref.Hash == head {
				res.Tags["latest"] = ref.Name
				break
			}
		}
	}
	return res, nil
}
