package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/http/httpproxy"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/httputil"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/source"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// CredentialStore is a persistent credential source. *Store implements it.
type CredentialStore interface {
	Get(ctx context.Context, origin string) (Credentials, bool, error)
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration // per request, including the body (default 60s)
	Retries    int           // attempts for transient failures (default 3)
	RetryDelay time.Duration // initial backoff, doubled per attempt (default 500ms)
	Insecure   bool          // skip TLS certificate verification
	UserAgent  string

	Store  CredentialStore
	Helper Helper

	// Transport replaces the proxy-aware default transport.
	Transport http.RoundTripper

	Hooks  observability.Hooks
	Logger *log.Logger
}

type authHook struct {
	prefix string
	fn     AuthFunc
}

// Client is an authenticated, retrying HTTP client. It is safe for
// concurrent use and implements source.Doer.
type Client struct {
	http   *http.Client
	opts   Options
	hooks  observability.Hooks
	logger *log.Logger

	mu    sync.RWMutex
	auth  []authHook
	creds map[string]Credentials
	group singleflight.Group
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts.Insecure)
	}
	return &Client{
		http:   &http.Client{Transport: transport, Timeout: opts.Timeout},
		opts:   opts,
		hooks:  opts.Hooks.WithDefaults(),
		logger: opts.Logger,
		creds:  make(map[string]Credentials),
	}
}

func newTransport(insecure bool) *http.Transport {
	proxy := httpproxy.FromEnvironment().ProxyFunc()
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// RegisterAuth installs an auth hook for every URL starting with prefix.
// The longest matching prefix wins.
func (c *Client) RegisterAuth(prefix string, fn AuthFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = append(c.auth, authHook{prefix: prefix, fn: fn})
	slices.SortStableFunc(c.auth, func(a, b authHook) int { return len(b.prefix) - len(a.prefix) })
}

func (c *Client) authFor(u *url.URL) AuthFunc {
	s := origin(u) + u.EscapedPath()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.auth {
		if strings.HasPrefix(s, h.prefix) {
			return h.fn
		}
	}
	return nil
}

// Credentials resolves the credentials for u. A non-nil unauthorized header
// set marks a re-authorization: the cached entry for the origin is dropped
// and the auth hook sees the rejected credentials and response headers.
func (c *Client) Credentials(ctx context.Context, u *url.URL, unauthorized http.Header) (Credentials, error) {
	key := origin(u)
	if unauthorized != nil {
		c.mu.Lock()
		rejected := c.creds[key]
		delete(c.creds, key)
		c.mu.Unlock()

		creds, err := c.resolve(ctx, u, rejected, unauthorized)
		if err != nil {
			return Credentials{}, err
		}
		c.remember(key, creds)
		return creds, nil
	}

	c.mu.RLock()
	creds, ok := c.creds[key]
	c.mu.RUnlock()
	if ok {
		return creds, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		creds, ok := c.creds[key]
		c.mu.RUnlock()
		if ok {
			return creds, nil
		}
		creds, err := c.resolve(ctx, u, Credentials{}, nil)
		if err != nil {
			return nil, err
		}
		c.remember(key, creds)
		return creds, nil
	})
	if err != nil {
		return Credentials{}, err
	}
	return v.(Credentials), nil
}

func (c *Client) remember(key string, creds Credentials) {
	c.mu.Lock()
	c.creds[key] = creds
	c.mu.Unlock()
}

func (c *Client) resolve(ctx context.Context, u *url.URL, current Credentials, unauthorized http.Header) (Credentials, error) {
	if creds, ok := userinfo(u); ok {
		if unauthorized == nil {
			return creds, nil
		}
		current = creds
	}
	if fn := c.authFor(u); fn != nil {
		creds, ok, err := fn(ctx, u, current, unauthorized)
		if err != nil {
			return Credentials{}, errors.Wrap(errors.ErrCodeUnauthorized, err, "authorize %s", origin(u))
		}
		if ok {
			return creds, nil
		}
	}
	if c.opts.Store != nil {
		creds, ok, err := c.opts.Store.Get(ctx, origin(u))
		if err != nil {
			c.logger.Warn("credential store", "origin", origin(u), "error", err)
		} else if ok {
			return creds, nil
		}
	}
	if c.opts.Helper != nil {
		creds, ok, err := c.opts.Helper.Fill(ctx, u)
		if err != nil {
			c.logger.Debug("credential helper", "origin", origin(u), "error", err)
		} else if ok {
			return creds, nil
		}
	}
	return Credentials{}, nil
}

// Do sends req. Requests that already carry an Authorization header are sent
// as is; all others get resolved credentials and one re-authorization on 401
// or 403. The response of a second rejection is returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	explicit := req.Header.Get("Authorization") != ""

	var creds Credentials
	if !explicit {
		var err error
		if creds, err = c.Credentials(ctx, req.URL, nil); err != nil {
			return nil, err
		}
	}
	resp, err := c.send(req, creds)
	if err != nil || explicit || !rejected(resp) || !replayable(req) {
		return resp, err
	}

	fresh, err := c.Credentials(ctx, req.URL, resp.Header.Clone())
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	if fresh == creds {
		return resp, nil
	}
	c.logger.Debug("reauthorizing", "origin", origin(req.URL), "status", resp.StatusCode)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return c.send(req, fresh)
}

func (c *Client) send(req *http.Request, creds Credentials) (*http.Response, error) {
	ctx := req.Context()
	attempts := 1
	if httputil.IsIdempotent(req.Method) && replayable(req) {
		attempts = c.opts.Retries
	}

	var resp *http.Response
	err := httputil.Retry(ctx, attempts, c.opts.RetryDelay, func() error {
		r, err := clone(req)
		if err != nil {
			return err
		}
		creds.Apply(r)
		if c.opts.UserAgent != "" && r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", c.opts.UserAgent)
		}

		c.hooks.HTTP.OnRequest(ctx, r.Method, r.URL.Host, r.URL.Path)
		start := time.Now()
		resp, err = c.http.Do(r)
		if err != nil {
			c.hooks.HTTP.OnError(ctx, r.Method, r.URL.Host, r.URL.Path, err)
			if httputil.IsTransient(err) {
				c.logger.Debug("retrying", "url", r.URL.Redacted(), "error", err)
				return &httputil.RetryableError{Err: err}
			}
			return err
		}
		c.hooks.HTTP.OnResponse(ctx, r.Method, r.URL.Host, r.URL.Path, resp.StatusCode, time.Since(start))
		return nil
	})
	if err != nil {
		if stderrors.Is(err, context.Canceled) {
			return nil, err
		}
		code := errors.ErrCodeNetwork
		if stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			code = errors.ErrCodeTimeout
		}
		return nil, errors.Wrap(code, err, "%s %s", req.Method, req.URL.Redacted())
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return stderrors.As(err, &t) && t.Timeout()
}

func rejected(resp *http.Response) bool {
	return resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func clone(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
	}
	return r, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v. Non-2xx
// responses become coded errors (NOT_FOUND, UNAUTHORIZED, ...).
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid url %q", rawURL)
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := source.StatusError(resp, req.URL.Redacted()); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeRegistry, err, "decode %s", req.URL.Redacted())
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
