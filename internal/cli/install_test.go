package cli

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/install"
)

// newRegistry serves one npm package, "left@1.0.0", with its tarball.
func newRegistry(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	r := chi.NewRouter()
	r.Get("/left", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"name":      "left",
			"dist-tags": map[string]string{"latest": "1.0.0"},
			"versions": map[string]any{
				"1.0.0": map[string]any{
					"version": "1.0.0",
					"dist":    map[string]string{"tarball": srv.URL + "/left/-/left-1.0.0.tgz"},
				},
			},
		})
	})
	r.Get("/left/-/{file}", func(w http.ResponseWriter, req *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gz)
		body := `{"name":"left","version":"1.0.0"}`
		tw.WriteHeader(&tar.Header{Name: "package/package.json", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg})
		tw.Write([]byte(body))
		tw.Close()
		gz.Close()
		w.Write(buf.Bytes())
	})
	srv = httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// captureStdout redirects command output for the rest of the test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestInstallCommandReportsActivity(t *testing.T) {
	srv := newRegistry(t)
	c, _ := testCLI(t, `
[lookup_cache]
backend = "none"

[registries.npm]
type = "npm"
url = "`+srv.URL+`"
`)
	var logs bytes.Buffer
	c.Logger = newLogger(&logs, LogInfo)
	c.errOut = &logs
	out := captureStdout(t)
	project := t.TempDir()

	root := newTestRoot(c, "--dir", project, "install", "left@^1.0.0")
	if err := root.Execute(); err != nil {
		t.Fatalf("install: %v\n%s", err, logs.String())
	}

	for _, want := range []string{"resolved=1", "fetched=1", "linked=1", "changed=true"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log missing %q:\n%s", want, logs.String())
		}
	}
	summary := out.String()
	for _, want := range []string{"Saved package.json", "left → npm:left@1.0.0", "1 resolved", "1 linked"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if _, err := os.Stat(filepath.Join(project, install.LockfileName)); err != nil {
		t.Errorf("lockfile: %v", err)
	}

	// A second run reuses the lockfile and the store.
	logs.Reset()
	out.Reset()
	root = newTestRoot(c, "--dir", project, "install")
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Already up to date") {
		t.Errorf("summary = %q", out.String())
	}
	if !strings.Contains(logs.String(), "resolved=0") || !strings.Contains(logs.String(), "changed=false") {
		t.Errorf("log = %q", logs.String())
	}
}

func TestCheckoutCommand(t *testing.T) {
	srv := newRegistry(t)
	c, _ := testCLI(t, `
[lookup_cache]
backend = "none"

[registries.npm]
type = "npm"
url = "`+srv.URL+`"
`)
	c.errOut = &bytes.Buffer{}
	captureStdout(t)
	project := t.TempDir()

	if err := newTestRoot(c, "--dir", project, "install", "left@^1.0.0").Execute(); err != nil {
		t.Fatal(err)
	}
	if err := newTestRoot(c, "--dir", project, "checkout", "left").Execute(); err != nil {
		t.Fatal(err)
	}
	slot := filepath.Join(project, install.PackagesDir, "npm", "left@1.0.0")
	info, err := os.Lstat(slot)
	if err != nil || !info.IsDir() {
		t.Fatalf("slot after checkout: %v, %v", info, err)
	}
	err = newTestRoot(c, "--dir", project, "checkout", "left").Execute()
	if !errors.Is(err, errors.ErrCodeCheckedOut) {
		t.Errorf("second checkout: err = %v", err)
	}
}
