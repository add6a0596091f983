package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/source"
)

// DefaultLookupTTL is how long cached lookups stay valid for offline use.
const DefaultLookupTTL = 7 * 24 * time.Hour

// Options configures a Manager.
type Options struct {
	// CacheDir is the global cache root. The store lives in CacheDir/packages.
	CacheDir string

	// Offline resolves from the lookup cache only.
	Offline bool

	// Client is the HTTP transport. Defaults to a fresh fetch.Client.
	Client *fetch.Client

	// Protocols downloads sources. Defaults to the standard set on Client.
	Protocols *source.Protocols

	// Lookups caches registry lookups. Defaults to a NullCache.
	Lookups   cache.Cache
	Keyer     cache.Keyer
	LookupTTL time.Duration

	Hooks  observability.Hooks
	Logger *log.Logger
}

// Manager resolves targets against registered endpoints and maintains the
// global store. It is safe for concurrent use within one operation.
type Manager struct {
	opts   Options
	hooks  observability.Hooks
	logger *log.Logger

	mu        sync.Mutex
	endpoints map[string]Endpoint
	keyers    map[string]cache.Keyer
	lookups   map[string]*lookupCall
}

type lookupCall struct {
	done chan struct{}
	res  *LookupResult
	err  error
}

// Resolution is the result of Resolve.
type Resolution struct {
	Exact pkgname.Exact

	// Pinned is the range to record for the install: the requested range,
	// or a range pinned to Exact when a wildcard or tag was requested.
	Pinned pkgname.Target

	Source   string
	Override *Override

	// RegistryOverride is the patch the registry published for Exact,
	// before any user override was layered on it.
	RegistryOverride map[string]any

	Deprecated string
}

// NoResolutionError reports a target no published version satisfies.
type NoResolutionError struct {
	Target  string
	Offline bool
}

func (e *NoResolutionError) Error() string {
	msg := fmt.Sprintf("no resolution found for %q", e.Target)
	if e.Offline {
		msg += " (offline)"
	}
	return msg
}

// Code implements the coded error contract.
func (e *NoResolutionError) Code() errors.Code { return errors.ErrCodeNoResolution }

// NewManager creates a Manager. Register endpoints before use.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Client == nil {
		opts.Client = fetch.NewClient(fetch.Options{Hooks: opts.Hooks, Logger: opts.Logger})
	}
	if opts.Lookups == nil {
		opts.Lookups = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.LookupTTL <= 0 {
		opts.LookupTTL = DefaultLookupTTL
	}
	m := &Manager{
		opts:      opts,
		hooks:     opts.Hooks.WithDefaults(),
		logger:    opts.Logger,
		endpoints: make(map[string]Endpoint),
		keyers:    make(map[string]cache.Keyer),
		lookups:   make(map[string]*lookupCall),
	}
	if m.opts.Protocols == nil {
		m.opts.Protocols = source.NewProtocols(opts.Client, m.gitAuth)
	}
	return m
}

// gitAuth feeds fetch credentials to git over HTTP.
func (m *Manager) gitAuth(ctx context.Context, rawURL string) (string, string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", false
	}
	creds, err := m.opts.Client.Credentials(ctx, u, nil)
	if err != nil || creds.IsZero() {
		return "", "", false
	}
	if creds.Token != "" {
		return "x-access-token", creds.Token, true
	}
	return creds.Username, creds.Password, true
}

// Register adds an endpoint under a registry name.
func (m *Manager) Register(name string, ep Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endpoints[name] = ep
	keyer := m.opts.Keyer
	if b, ok := ep.(baseURLer); ok {
		keyer = cache.NewScopedKeyer(keyer, cache.EndpointScope(b.BaseURL()))
	}
	m.keyers[name] = keyer
	if a, ok := ep.(Authorizer); ok {
		m.opts.Client.RegisterAuth(a.AuthPrefix(), a.Auth)
	}
}

// Endpoint returns the endpoint registered under name.
func (m *Manager) Endpoint(name string) (Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidTarget, "unknown registry %q", name)
	}
	return ep, nil
}

// Offline reports whether the manager resolves from cache only.
func (m *Manager) Offline() bool { return m.opts.Offline }

// StoreDir returns the store root.
func (m *Manager) StoreDir() string { return filepath.Join(m.opts.CacheDir, "packages") }

// ResetOperation forgets the lookups of the previous operation.
func (m *Manager) ResetOperation() {
	m.mu.Lock()
	m.lookups = make(map[string]*lookupCall)
	m.mu.Unlock()
}

// Lookup returns the lookup result for the target's package. Concurrent and
// repeated calls within one operation share a single endpoint lookup.
func (m *Manager) Lookup(ctx context.Context, target pkgname.Target) (*LookupResult, error) {
	key := target.Package()
	m.mu.Lock()
	call, ok := m.lookups[key]
	if !ok {
		call = &lookupCall{done: make(chan struct{})}
		m.lookups[key] = call
	}
	m.mu.Unlock()

	if ok {
		select {
		case <-call.done:
			return call.res, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call.res, call.err = m.lookup(ctx, target)
	close(call.done)
	return call.res, call.err
}

func (m *Manager) lookup(ctx context.Context, target pkgname.Target) (*LookupResult, error) {
	ep, err := m.Endpoint(target.Registry)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	key := m.keyers[target.Registry].LookupKey(target.Registry, target.Name)
	m.mu.Unlock()

	if m.opts.Offline {
		return m.cachedLookup(ctx, key)
	}

	res, err := ep.Lookup(ctx, target.Name, target)
	switch {
	case errors.Is(err, errors.ErrCodeNotFound):
		return nil, nil
	case errors.Is(err, errors.ErrCodeNetwork) || errors.Is(err, errors.ErrCodeTimeout):
		if cached, cerr := m.cachedLookup(ctx, key); cerr == nil && cached != nil {
			m.logger.Warn("registry unreachable, using cached metadata", "package", target.Package(), "error", err)
			return cached, nil
		}
		fallthrough
	case err != nil:
		return nil, errors.Wrap(errors.ErrCodeRegistry, err, "lookup %s", target.Package())
	case res == nil:
		return nil, nil
	}

	if data, err := json.Marshal(res); err == nil {
		if err := m.opts.Lookups.Set(ctx, key, data, m.opts.LookupTTL); err != nil {
			m.logger.Debug("lookup cache write failed", "key", key, "error", err)
		} else {
			m.hooks.Cache.OnCacheSet(ctx, "lookup", len(data))
		}
	}
	return res, nil
}

func (m *Manager) cachedLookup(ctx context.Context, key string) (*LookupResult, error) {
	var res LookupResult
	ok, err := cache.GetJSON(ctx, m.opts.Lookups, key, &res)
	if err != nil {
		return nil, fmt.Errorf("read lookup cache: %w", err)
	}
	if !ok {
		m.hooks.Cache.OnCacheMiss(ctx, "lookup")
		return nil, nil
	}
	m.hooks.Cache.OnCacheHit(ctx, "lookup")
	return &res, nil
}

// Resolve picks the version of target to install. override is the user's
// matching override, if any; the returned override layers it over what the
// registry provides.
func (m *Manager) Resolve(ctx context.Context, target pkgname.Target, override *Override, preferUnstable bool) (*Resolution, error) {
	start := time.Now()
	r, err := m.resolve(ctx, target, override, preferUnstable)
	exact := ""
	if r != nil {
		exact = r.Exact.String()
	}
	m.hooks.Install.OnResolve(ctx, target.String(), exact, time.Since(start), err)
	return r, err
}

func (m *Manager) resolve(ctx context.Context, target pkgname.Target, override *Override, preferUnstable bool) (*Resolution, error) {
	res, err := m.Lookup(ctx, target)
	if err != nil {
		return nil, err
	}
	exact, version, ok := selectVersion(res, target, preferUnstable)
	if !ok {
		return nil, &NoResolutionError{Target: target.String(), Offline: m.opts.Offline}
	}
	if version.Source == "" {
		if version, err = m.resolveVersion(ctx, exact); err != nil {
			return nil, err
		}
	}

	pinned := target
	if target.IsWildcard() || target.IsTag() {
		pinned = pkgname.PinTarget(exact)
	}
	return &Resolution{
		Exact:            exact,
		Pinned:           pinned,
		Source:           version.Source,
		Override:         LayerOverride(exact, version.Override, override),
		RegistryOverride: version.Override,
		Deprecated:       version.Deprecated,
	}, nil
}

// resolveVersion asks a Resolver endpoint for the source of exact.
func (m *Manager) resolveVersion(ctx context.Context, exact pkgname.Exact) (Version, error) {
	ep, err := m.Endpoint(exact.Registry)
	if err != nil {
		return Version{}, err
	}
	r, ok := ep.(Resolver)
	if !ok {
		return Version{}, errors.New(errors.ErrCodeRegistry, "registry %q published no source for %s", exact.Registry, exact)
	}
	v, err := r.Resolve(ctx, exact.Name.Name, exact.Version)
	if err != nil {
		return Version{}, errors.Wrap(errors.ErrCodeRegistry, err, "resolve %s", exact)
	}
	if v == nil || v.Source == "" {
		return Version{}, errors.New(errors.ErrCodeRegistry, "registry %q published no source for %s", exact.Registry, exact)
	}
	return *v, nil
}
