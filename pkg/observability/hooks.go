// Package observability provides hooks for install, cache and HTTP events.
//
// Hooks are passed explicitly: the CLI builds one [Hooks] value and hands it
// to the fetch client, the registry manager and the installer. Nothing is
// registered globally, so tests can observe exactly the events of the
// components they construct.
//
//	hooks := observability.Hooks{HTTP: observability.NewLogHooks(logger)}
//	client := fetch.NewClient(fetch.Options{Hooks: hooks})
//
// Zero fields are no-ops; call [Hooks.WithDefaults] before use.
package observability

import (
	"context"
	"time"
)

// InstallHooks receives events from the installer.
type InstallHooks interface {
	// OnResolve records a registry resolution of target.
	OnResolve(ctx context.Context, target, exact string, duration time.Duration, err error)

	// OnFetch records a store install of source. Reused is true when the
	// store already held the entry.
	OnFetch(ctx context.Context, source string, reused bool, duration time.Duration, err error)

	// OnLink records a project package slot pointing at a store entry.
	OnLink(ctx context.Context, exact, dir string)
}

// CacheHooks receives events from the lookup cache.
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// Hooks bundles the hook sets handed to stackpm components.
type Hooks struct {
	Install InstallHooks
	Cache   CacheHooks
	HTTP    HTTPHooks
}

// WithDefaults returns h with nil fields replaced by no-ops.
func (h Hooks) WithDefaults() Hooks {
	if h.Install == nil {
		h.Install = NoopInstallHooks{}
	}
	if h.Cache == nil {
		h.Cache = NoopCacheHooks{}
	}
	if h.HTTP == nil {
		h.HTTP = NoopHTTPHooks{}
	}
	return h
}

// NoopInstallHooks is a no-op implementation of InstallHooks.
type NoopInstallHooks struct{}

func (NoopInstallHooks) OnResolve(context.Context, string, string, time.Duration, error) {}
func (NoopInstallHooks) OnFetch(context.Context, string, bool, time.Duration, error)     {}
func (NoopInstallHooks) OnLink(context.Context, string, string)                          {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// MultiInstallHooks forwards every install event to each of hooks in order.
// Nil entries are skipped.
func MultiInstallHooks(hooks ...InstallHooks) InstallHooks {
	var m multiInstall
	for _, h := range hooks {
		if h != nil {
			m = append(m, h)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

type multiInstall []InstallHooks

func (m multiInstall) OnResolve(ctx context.Context, target, exact string, d time.Duration, err error) {
	for _, h := range m {
		h.OnResolve(ctx, target, exact, d, err)
	}
}

func (m multiInstall) OnFetch(ctx context.Context, source string, reused bool, d time.Duration, err error) {
	for _, h := range m {
		h.OnFetch(ctx, source, reused, d, err)
	}
}

func (m multiInstall) OnLink(ctx context.Context, exact, dir string) {
	for _, h := range m {
		h.OnLink(ctx, exact, dir)
	}
}
