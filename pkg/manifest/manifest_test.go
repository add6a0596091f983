package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGetSetChanged(t *testing.T) {
	m, err := Load(writeManifest(t, `{"name":"app","dependencies":{"left":"^1.0.0"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := m.Get("dependencies", "left"); !ok || v != "^1.0.0" {
		t.Errorf("Get = %v, %v", v, ok)
	}

	m.Set("^1.0.0", "dependencies", "left")
	m.Set(nil, "devDependencies", "missing")
	if m.Changed() {
		t.Error("no-op Set marked the manifest changed")
	}

	m.Set("^2.0.0", "dependencies", "right")
	if !m.Changed() {
		t.Error("Set did not mark the manifest changed")
	}
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
	if m.Changed() {
		t.Error("Save did not clear changed")
	}

	reloaded, err := Load(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := reloaded.Get("dependencies", "right"); v != "^2.0.0" {
		t.Errorf("reloaded right = %v", v)
	}
	if v, _ := reloaded.Get("name"); v != "app" {
		t.Errorf("name lost on save: %v", v)
	}
}

func TestSaveUnchangedDoesNotWrite(t *testing.T) {
	path := writeManifest(t, `{"name":"app"}`)
	m, _ := Load(path)
	if err := m.Save(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"name":"app"}` {
		t.Errorf("unchanged manifest rewritten: %s", data)
	}
}

func TestPrimaryRanges(t *testing.T) {
	m, err := Load(writeManifest(t, `{
		"dependencies": {"left": "^1.0.0", "widget": "git+https://example.com/acme/widget.git#main"},
		"devDependencies": {"lint": "npm:eslint@^9.0.0", "left": "^0.1.0"},
		"peerDependencies": {"host": "*"},
		"optionalDependencies": {"local": "./vendor/local"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	ranges, err := m.PrimaryRanges("npm")
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]struct {
		typ    DepType
		target string
	}{
		"left":   {Primary, "npm:left@^1.0.0"},
		"widget": {Primary, "git+https://example.com/acme/widget.git#main"},
		"lint":   {Dev, "npm:eslint@^9.0.0"},
		"host":   {Peer, "npm:host"},
		"local":  {Optional, "link:./vendor/local"},
	}
	for name, want := range tests {
		got, ok := ranges[name]
		if !ok {
			t.Errorf("%s missing", name)
			continue
		}
		if got.Type != want.typ || got.Target.String() != want.target {
			t.Errorf("%s = %v, want %v %s", name, got, want.typ, want.target)
		}
	}
}

func TestSetPrimaryRangeMovesSections(t *testing.T) {
	m, _ := Load(writeManifest(t, `{"devDependencies":{"left":"^1.0.0"}}`))
	m.SetPrimaryRange("left", PrimaryRange{Type: Primary, Target: pkgname.MustParseTarget("npm:left@^1.2.0")}, "npm")

	if _, ok := m.Get("devDependencies", "left"); ok {
		t.Error("left still in devDependencies")
	}
	if v, _ := m.Get("dependencies", "left"); v != "^1.2.0" {
		t.Errorf("dependencies.left = %v", v)
	}

	m.SetPrimaryRange("alias", PrimaryRange{Type: Primary, Target: pkgname.MustParseTarget("npm:left@^1.2.0")}, "npm")
	if v, _ := m.Get("dependencies", "alias"); v != "npm:left@^1.2.0" {
		t.Errorf("aliased install declared as %v", v)
	}

	if !m.RemovePrimaryRange("left") || m.RemovePrimaryRange("left") {
		t.Error("RemovePrimaryRange did not report removal once")
	}
}

func TestOverrides(t *testing.T) {
	m, _ := Load(writeManifest(t, `{"overrides": {
		"left@^1.0.0": {"main": "a.js"},
		"gh:acme/widget@main": {"main": "b.js"},
		"https://t.example/x.tgz": {"main": "c.js"}
	}}`))
	overrides, err := m.Overrides("npm")
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 3 {
		t.Fatalf("got %d overrides", len(overrides))
	}
	got := map[string]any{}
	for _, o := range overrides {
		got[o.Target.String()] = o.Config["main"]
	}
	want := map[string]any{
		"npm:left@^1.0.0":         "a.js",
		"gh:acme/widget@main":     "b.js",
		"https://t.example/x.tgz": "c.js",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("override %s = %v, want %v", k, got[k], v)
		}
	}

	m.SetOverride(registry.Override{Target: pkgname.MustParseTarget("npm:right@^2.0.0"), Config: map[string]any{"main": "d.js"}})
	if v, _ := m.Get("overrides", "npm:right@^2.0.0", "main"); v != "d.js" {
		t.Errorf("SetOverride stored %v", v)
	}
}

func TestInvalidManifest(t *testing.T) {
	if _, err := Load(writeManifest(t, `{"dependencies": `)); !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("truncated manifest err = %v", err)
	}
	m, _ := Load(writeManifest(t, `{"dependencies": {"left": 1}}`))
	if _, err := m.PrimaryRanges("npm"); !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("non-string range err = %v", err)
	}
}

func TestLockContention(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Acquire(dir)
	if !errors.Is(err, errors.ErrCodeLocked) || !errors.IsUserError(err) {
		t.Errorf("second Acquire err = %v, want LOCKED user error", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	again, err := Acquire(dir)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again.Release()
}
