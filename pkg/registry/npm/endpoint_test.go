package npm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/stackpm/pkg/fetch"
	"github.com/matzehuels/stackpm/pkg/pkgname"
)

func newRegistry(t *testing.T, token string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if token != "" && req.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/left", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, `{
			"name": "left",
			"dist-tags": {"latest": "1.1.0"},
			"versions": {
				"1.0.0": {"version": "1.0.0", "dist": {"tarball": "https://t.example/left-1.0.0.tgz", "shasum": "abc"}},
				"1.1.0": {"version": "1.1.0", "deprecated": "use right", "dist": {"tarball": "https://t.example/left-1.1.0.tgz", "integrity": "sha512-xyz"}, "stackpm": {"main": "lib/index.js"}}
			}
		}`)
	})
	r.Get("/@acme%2Fwidget", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"name": "@acme/widget", "dist-tags": {}, "versions": {"2.0.0": {"dist": {"tarball": "https://t.example/w.tgz"}}}}`)
	})
	r.Get("/left/1.0.0", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, `{"version": "1.0.0", "dist": {"tarball": "https://t.example/left-1.0.0.tgz", "integrity": "sha512-abc"}}`)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	srv := newRegistry(t, "")
	ep := New(fetch.NewClient(fetch.Options{}), Options{URL: srv.URL})

	res, err := ep.Lookup(context.Background(), "left", pkgname.MustParseTarget("npm:left@^1.0.0"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Tags["latest"] != "1.1.0" {
		t.Errorf("latest = %q", res.Tags["latest"])
	}
	v := res.Versions["1.1.0"]
	if v.Source != "https://t.example/left-1.1.0.tgz#sha512-xyz" {
		t.Errorf("source = %q", v.Source)
	}
	if v.Deprecated != "use right" || v.Override["main"] != "lib/index.js" {
		t.Errorf("version = %+v", v)
	}
	if got := res.Versions["1.0.0"].Source; got != "https://t.example/left-1.0.0.tgz#abc" {
		t.Errorf("shasum source = %q", got)
	}
}

func TestLookupScopedAndMissing(t *testing.T) {
	srv := newRegistry(t, "")
	ep := New(fetch.NewClient(fetch.Options{}), Options{URL: srv.URL})

	res, err := ep.Lookup(context.Background(), "@acme/widget", pkgname.Target{})
	if err != nil || len(res.Versions) != 1 {
		t.Fatalf("scoped lookup = %+v, %v", res, err)
	}
	res, err = ep.Lookup(context.Background(), "nope", pkgname.Target{})
	if err != nil || res != nil {
		t.Errorf("missing package = %+v, %v; want nil, nil", res, err)
	}
}

func TestResolveVersion(t *testing.T) {
	srv := newRegistry(t, "")
	ep := New(fetch.NewClient(fetch.Options{}), Options{URL: srv.URL})
	v, err := ep.Resolve(context.Background(), "left", "1.0.0")
	if err != nil || v.Source != "https://t.example/left-1.0.0.tgz#sha512-abc" {
		t.Errorf("Resolve = %+v, %v", v, err)
	}
}

func TestTokenAuth(t *testing.T) {
	srv := newRegistry(t, "s3cret")
	client := fetch.NewClient(fetch.Options{})
	ep := New(client, Options{URL: srv.URL, Token: "s3cret"})
	client.RegisterAuth(ep.AuthPrefix(), ep.Auth)

	if _, err := ep.Lookup(context.Background(), "left", pkgname.Target{}); err != nil {
		t.Fatalf("authorized lookup: %v", err)
	}

	bad := New(fetch.NewClient(fetch.Options{}), Options{URL: srv.URL})
	if _, err := bad.Lookup(context.Background(), "left", pkgname.Target{}); err == nil {
		t.Error("lookup without token succeeded")
	}
}
