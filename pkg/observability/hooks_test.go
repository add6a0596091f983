package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()
	h := Hooks{}.WithDefaults()

	h.Install.OnResolve(ctx, "npm:left@^1.0.0", "npm:left@1.0.0", time.Second, nil)
	h.Install.OnFetch(ctx, "https://r.example/left.tgz", false, time.Second, nil)
	h.Install.OnLink(ctx, "npm:left@1.0.0", "/tmp/x")
	h.Cache.OnCacheHit(ctx, "lookup")
	h.Cache.OnCacheMiss(ctx, "lookup")
	h.Cache.OnCacheSet(ctx, "lookup", 1024)
	h.HTTP.OnRequest(ctx, "GET", "registry.npmjs.org", "/left")
	h.HTTP.OnResponse(ctx, "GET", "registry.npmjs.org", "/left", 200, time.Second)
	h.HTTP.OnError(ctx, "GET", "registry.npmjs.org", "/left", nil)
}

type countingHTTP struct {
	NoopHTTPHooks
	requests int
}

func (c *countingHTTP) OnRequest(context.Context, string, string, string) { c.requests++ }

func TestWithDefaultsKeepsCustomHooks(t *testing.T) {
	custom := &countingHTTP{}
	h := Hooks{HTTP: custom}.WithDefaults()
	if h.HTTP != custom {
		t.Fatal("WithDefaults replaced custom HTTP hooks")
	}
	if _, ok := h.Install.(NoopInstallHooks); !ok {
		t.Error("Install should default to NoopInstallHooks")
	}
	h.HTTP.OnRequest(context.Background(), "GET", "h", "/")
	if custom.requests != 1 {
		t.Errorf("requests = %d", custom.requests)
	}
}

func TestLogHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	h := NewLogHooks(logger).All()

	ctx := context.Background()
	h.Install.OnResolve(ctx, "npm:left@^1.0.0", "npm:left@1.0.0", 5*time.Millisecond, nil)
	h.HTTP.OnError(ctx, "GET", "registry.example", "/left", errors.New("connection reset"))

	out := buf.String()
	for _, want := range []string{"resolved", "npm:left@1.0.0", "request failed", "connection reset"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

type countingInstall struct {
	NoopInstallHooks
	links []string
}

func (c *countingInstall) OnLink(_ context.Context, exact, _ string) {
	c.links = append(c.links, exact)
}

func TestMultiInstallHooks(t *testing.T) {
	a, b := &countingInstall{}, &countingInstall{}
	h := MultiInstallHooks(a, nil, b)
	h.OnLink(context.Background(), "npm:left@1.0.0", "/tmp/left")
	h.OnResolve(context.Background(), "npm:left@^1.0.0", "npm:left@1.0.0", time.Millisecond, nil)
	for _, c := range []*countingInstall{a, b} {
		if len(c.links) != 1 || c.links[0] != "npm:left@1.0.0" {
			t.Errorf("links = %v", c.links)
		}
	}
	if single := MultiInstallHooks(nil, a); single != InstallHooks(a) {
		t.Error("a single hook set should be returned as is")
	}
}
