package install

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// packages maps name → version → package.json fields.
type packages map[string]map[string]map[string]any

// fixture is an in-memory registry whose sources are served as tarballs.
type fixture struct {
	t        *testing.T
	srv      *httptest.Server
	packages packages
	cacheDir string

	// block, when set, holds every lookup until it is closed.
	block   chan struct{}
	entered chan struct{}

	mu        sync.Mutex
	lookups   map[string]int
	downloads map[string]int
}

func newFixture(t *testing.T, pkgs packages) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		packages:  pkgs,
		cacheDir:  t.TempDir(),
		lookups:   map[string]int{},
		downloads: map[string]int{},
	}
	r := chi.NewRouter()
	r.Get("/tarballs/{name}/{file}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		version := strings.TrimSuffix(chi.URLParam(req, "file"), ".tgz")
		f.mu.Lock()
		cfg, ok := f.packages[name][version]
		if ok {
			f.downloads[name]++
		}
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, req)
			return
		}
		w.Write(tarball(t, name, version, cfg))
	})
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) Lookup(ctx context.Context, name string, _ pkgname.Target) (*registry.LookupResult, error) {
	f.mu.Lock()
	f.lookups[name]++
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if block != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	versions, ok := f.packages[name]
	if !ok {
		return nil, nil
	}
	res := &registry.LookupResult{Versions: map[string]registry.Version{}}
	for v := range versions {
		res.Versions[v] = registry.Version{Source: f.srv.URL + "/tarballs/" + name + "/" + v + ".tgz"}
	}
	return res, nil
}

func (f *fixture) publish(name, version string, cfg map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[name][version] = cfg
}

func (f *fixture) count(m map[string]int, name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[name]
}

func tarball(t *testing.T, name, version string, cfg map[string]any) []byte {
	t.Helper()
	files := map[string]string{}
	doc := map[string]any{"name": name, "version": version}
	for k, v := range cfg {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	files["package.json"] = string(data)
	if bins, ok := cfg["bin"].(map[string]any); ok {
		for _, script := range bins {
			files[script.(string)] = "#!/usr/bin/env node\n"
		}
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for p, body := range files {
		hdr := &tar.Header{Name: "package/" + p, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		tw.Write([]byte(body))
	}
	tw.Close()
	gz.Close()
	return buf.Bytes()
}

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, manifest.FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// open locks dir and returns an installer against f. The project is closed
// when the test ends.
func (f *fixture) open(dir string, prompter Prompter) *Installer {
	f.t.Helper()
	proj, err := OpenProject(dir)
	if err != nil {
		f.t.Fatal(err)
	}
	f.t.Cleanup(func() { proj.Close() })
	m := registry.NewManager(registry.Options{CacheDir: f.cacheDir})
	m.Register("npm", f)
	return New(Config{Project: proj, Registry: m, Prompter: prompter})
}

func leftRight() packages {
	return packages{
		"left": {
			"1.0.0": {"dependencies": map[string]any{"right": "^2.0.0"}},
		},
		"right": {
			"2.0.0": {},
			"2.3.1": {},
			"3.0.0": {},
		},
	}
}

func resolution(t *testing.T, tr *tree.Tree, b tree.Binding) string {
	t.Helper()
	e, ok := tr.Resolution(b)
	if !ok {
		t.Fatalf("no resolution for %s", b)
	}
	return e.String()
}

func TestInstallLeftRight(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	changed, err := i.Install(context.Background(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first install reported no change")
	}

	tr := i.Project().Tree
	if got := resolution(t, tr, tree.Binding{Name: "left"}); got != "npm:left@1.0.0" {
		t.Errorf("resolve.left = %s", got)
	}
	if got := resolution(t, tr, tree.Binding{Name: "right", Parent: "npm:left@1.0.0"}); got != "npm:right@2.3.1" {
		t.Errorf("left's right = %s, want npm:right@2.3.1", got)
	}
	if _, err := os.Stat(i.Project().LockfilePath()); err != nil {
		t.Errorf("lockfile not written: %v", err)
	}

	slot := i.Project().PackageDir(pkgname.MustParseExact("npm:right@2.3.1"))
	if _, err := os.Readlink(slot); err != nil {
		t.Errorf("slot is not a store link: %v", err)
	}
	cfg, err := registry.ReadConfig(slot)
	if err != nil || cfg.Version != "2.3.1" {
		t.Errorf("slot config = %+v, %v", cfg, err)
	}
}

func TestInstallIdempotent(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	if _, err := i.Install(context.Background(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	i.Project().Close()
	before, err := os.ReadFile(filepath.Join(dir, LockfileName))
	if err != nil {
		t.Fatal(err)
	}
	lookups, downloads := f.count(f.lookups, "right"), f.count(f.downloads, "right")

	i = f.open(dir, nil)
	changed, err := i.Install(context.Background(), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("reinstall reported a change")
	}
	after, _ := os.ReadFile(filepath.Join(dir, LockfileName))
	if !bytes.Equal(before, after) {
		t.Errorf("lockfile changed:\n%s\n---\n%s", before, after)
	}
	if f.count(f.lookups, "right") != lookups || f.count(f.downloads, "right") != downloads {
		t.Error("locked reinstall hit the registry")
	}
}

func TestInstallDedupesSharedDependency(t *testing.T) {
	f := newFixture(t, packages{
		"a":      {"1.0.0": {"dependencies": map[string]any{"shared": "^1.0.0"}}},
		"b":      {"1.0.0": {"dependencies": map[string]any{"shared": "^1.2.0"}}},
		"shared": {"1.0.0": {}, "1.3.0": {}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"a": "^1.0.0", "b": "^1.0.0"}}`)

	i := f.open(dir, nil)
	if _, err := i.Install(context.Background(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if n := f.count(f.lookups, "shared"); n != 1 {
		t.Errorf("shared looked up %d times, want 1", n)
	}
	if n := f.count(f.downloads, "shared"); n != 1 {
		t.Errorf("shared downloaded %d times, want 1", n)
	}
	tr := i.Project().Tree
	for _, parent := range []string{"npm:a@1.0.0", "npm:b@1.0.0"} {
		if got := resolution(t, tr, tree.Binding{Name: "shared", Parent: parent}); got != "npm:shared@1.3.0" {
			t.Errorf("%s's shared = %s", parent, got)
		}
	}
}

func TestInstallDedupeRebindsOlderVersion(t *testing.T) {
	f := newFixture(t, packages{
		"a":      {"1.0.0": {"dependencies": map[string]any{"shared": "^1.0.0"}}},
		"b":      {"1.0.0": {"dependencies": map[string]any{"shared": "^1.2.0"}}},
		"shared": {"1.0.0": {}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"a": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	f.publish("shared", "1.3.0", map[string]any{})

	_, err := i.Install(ctx, []Install{{Target: pkgname.MustParseTarget("npm:b@^1.0.0")}}, Options{Latest: true, Dedupe: true})
	if err != nil {
		t.Fatal(err)
	}
	tr := i.Project().Tree
	for _, parent := range []string{"npm:a@1.0.0", "npm:b@1.0.0"} {
		if got := resolution(t, tr, tree.Binding{Name: "shared", Parent: parent}); got != "npm:shared@1.3.0" {
			t.Errorf("%s's shared = %s, want npm:shared@1.3.0", parent, got)
		}
	}
	old := pkgname.MustParseExact("npm:shared@1.0.0")
	if _, ok := tr.Dependency(old); ok {
		t.Error("orphaned shared@1.0.0 was not pruned")
	}
	if _, err := os.Lstat(i.Project().PackageDir(old)); !os.IsNotExist(err) {
		t.Error("orphaned slot survived")
	}
}

func TestInstallCycle(t *testing.T) {
	f := newFixture(t, packages{
		"a": {"1.0.0": {"dependencies": map[string]any{"b": "^1.0.0"}}},
		"b": {"1.0.0": {"dependencies": map[string]any{"a": "^1.0.0"}}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"a": "^1.0.0"}}`)

	i := f.open(dir, nil)
	if _, err := i.Install(context.Background(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	tr := i.Project().Tree
	for _, key := range []string{"npm:a@1.0.0", "npm:b@1.0.0"} {
		if _, ok := tr.Dependency(pkgname.MustParseExact(key)); !ok {
			t.Errorf("no dependencies entry for %s", key)
		}
	}
	if got := resolution(t, tr, tree.Binding{Name: "a", Parent: "npm:b@1.0.0"}); got != "npm:a@1.0.0" {
		t.Errorf("b's a = %s", got)
	}
}

func TestInstallRecordsPrimaryRange(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()

	i := f.open(dir, nil)
	_, err := i.Install(context.Background(), []Install{
		{Target: pkgname.MustParseTarget("npm:right")},
		{Name: "old", Target: pkgname.MustParseTarget("npm:right@~2.0.0"), Type: manifest.Dev},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	m := i.Project().Manifest
	if got, _ := m.Get("dependencies", "right"); got != "^3.0.0" {
		t.Errorf("dependencies.right = %v, want ^3.0.0", got)
	}
	if got, _ := m.Get("devDependencies", "old"); got != "npm:right@~2.0.0" {
		t.Errorf("devDependencies.old = %v", got)
	}
	if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err != nil {
		t.Errorf("manifest not saved: %v", err)
	}
}

func TestInstallReplacesDeclaredRange(t *testing.T) {
	f := newFixture(t, packages{
		"left": {"1.0.0": {}, "2.0.0": {}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if _, err := i.Install(ctx, []Install{{Target: pkgname.MustParseTarget("npm:left@^2.0.0")}}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got, _ := i.Project().Manifest.Get("dependencies", "left"); got != "^2.0.0" {
		t.Errorf("dependencies.left = %v, want ^2.0.0", got)
	}

	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := resolution(t, i.Project().Tree, tree.Binding{Name: "left"}); got != "npm:left@2.0.0" {
		t.Errorf("reinstall resolved left to %s, want npm:left@2.0.0", got)
	}
}

func TestInstallFailureChain(t *testing.T) {
	f := newFixture(t, packages{
		"left":  {"1.0.0": {"dependencies": map[string]any{"right": "^9.0.0"}}},
		"right": {"2.0.0": {}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	_, err := i.Install(context.Background(), nil, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.ErrCodeNoResolution) {
		t.Errorf("err = %v, want NO_RESOLUTION in chain", err)
	}
	msg := errors.UserMessage(err)
	if !strings.HasPrefix(msg, `unable to install "left": unable to install "right"`) {
		t.Errorf("message = %q", msg)
	}
	if _, err := os.Stat(filepath.Join(dir, LockfileName)); !os.IsNotExist(err) {
		t.Error("failed install wrote the lockfile")
	}
}

func TestInstallSkipsFailedOptional(t *testing.T) {
	f := newFixture(t, packages{
		"left": {"1.0.0": {"optionalDependencies": map[string]any{"missing": "^1.0.0"}}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	if _, err := i.Install(context.Background(), nil, Options{}); err != nil {
		t.Fatalf("optional failure aborted the install: %v", err)
	}
}

func TestInstallLinksBins(t *testing.T) {
	f := newFixture(t, packages{
		"tool": {"1.0.0": {"bin": map[string]any{"tool": "bin/tool.js"}}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"devDependencies": {"tool": "^1.0.0"}}`)

	i := f.open(dir, nil)
	if _, err := i.Install(context.Background(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(i.Project().BinPath(), "tool")
	if _, err := os.Stat(bin); err != nil {
		t.Fatalf("bin not linked: %v", err)
	}

	// Removing the last package drops its entry points and the bin dir.
	if _, err := i.Uninstall(context.Background(), []string{"tool"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(i.Project().BinPath()); !os.IsNotExist(err) {
		t.Errorf("bin dir survived uninstall: %v", err)
	}
}

func TestUninstallAndClean(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	proj := i.Project()
	rightSlot := proj.PackageDir(pkgname.MustParseExact("npm:right@2.3.1"))

	changed, err := i.Uninstall(ctx, []string{"left"})
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("uninstall reported no change")
	}
	if _, ok := proj.Tree.Resolution(tree.Binding{Name: "left"}); ok {
		t.Error("left still bound")
	}
	if pkgs := proj.Tree.Packages(); len(pkgs) != 0 {
		t.Errorf("tree still holds %v", pkgs)
	}
	if _, err := os.Lstat(rightSlot); !os.IsNotExist(err) {
		t.Error("right's slot survived clean")
	}
	if _, err := os.Stat(filepath.Join(proj.PackagesPath(), "npm")); !os.IsNotExist(err) {
		t.Error("empty registry folder survived clean")
	}
	if _, ok := proj.Manifest.Get("dependencies", "left"); ok {
		t.Error("left still declared")
	}

	if _, err := i.Uninstall(ctx, []string{"left"}); !errors.Is(err, errors.ErrCodeNotInstalled) {
		t.Errorf("second uninstall err = %v, want NOT_INSTALLED", err)
	}
}

func TestCheckout(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	prompter := &StaticPrompter{}
	i := f.open(dir, prompter)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := i.Checkout(ctx, []string{"left"}); err != nil {
		t.Fatal(err)
	}
	slot := i.Project().PackageDir(pkgname.MustParseExact("npm:left@1.0.0"))
	info, err := os.Lstat(slot)
	if err != nil || !info.IsDir() {
		t.Fatalf("slot is not a real directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(slot, registry.MarkerFile)); err != nil {
		t.Errorf("checkout lost its marker: %v", err)
	}

	// A checked-out package is read from disk on reinstall.
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if info, _ := os.Lstat(slot); !info.IsDir() {
		t.Error("reinstall replaced the checkout")
	}
	if err := i.Checkout(ctx, []string{"left"}); !errors.Is(err, errors.ErrCodeCheckedOut) {
		t.Errorf("second checkout: err = %v", err)
	}

	// Clean asks before deleting it; the prompter declines.
	if _, err := i.Uninstall(ctx, []string{"left"}); err != nil {
		t.Fatal(err)
	}
	if len(prompter.Asked()) != 1 {
		t.Errorf("asked %v, want one confirmation", prompter.Asked())
	}
	if _, err := os.Stat(slot); err != nil {
		t.Error("declined removal deleted the checkout")
	}

	if err := i.Checkout(ctx, []string{"left"}); !errors.Is(err, errors.ErrCodeNotInstalled) {
		t.Errorf("checkout of uninstalled package: err = %v", err)
	}
}

func TestFullVerifyKeepsUnverifiableCheckout(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	prompter := &StaticPrompter{Decision: registry.DecisionCheckout}
	i := f.open(dir, prompter)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := i.Checkout(ctx, []string{"left"}); err != nil {
		t.Fatal(err)
	}
	slot := i.Project().PackageDir(pkgname.MustParseExact("npm:left@1.0.0"))
	edit := filepath.Join(slot, "edit.js")
	if err := os.WriteFile(edit, []byte("patched"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(slot, registry.MarkerFile)); err != nil {
		t.Fatal(err)
	}

	if _, err := i.Install(ctx, nil, Options{FullVerify: true}); err != nil {
		t.Fatal(err)
	}
	if got := prompter.Asked(); len(got) != 1 || got[0] != "verify "+slot {
		t.Errorf("asked %v, want one verification", got)
	}
	if _, err := os.Stat(edit); err != nil {
		t.Errorf("edited file lost: %v", err)
	}
	if info, err := os.Lstat(slot); err != nil || !info.IsDir() {
		t.Error("checkout was replaced by a store link")
	}

	// Reverting is an explicit decision.
	prompter.Decision = registry.DecisionRevert
	if _, err := i.Install(ctx, nil, Options{FullVerify: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Readlink(slot); err != nil {
		t.Errorf("reverted slot is not a store link: %v", err)
	}
}

func TestLink(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	local := t.TempDir()
	if err := os.WriteFile(filepath.Join(local, "package.json"), []byte(`{"name":"local","dependencies":{"right":"^2.0.0"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Link(ctx, "local", local, Options{}); err != nil {
		t.Fatal(err)
	}
	proj := i.Project()
	e, ok := proj.Tree.Resolution(tree.Binding{Name: "local"})
	if !ok || e.Registry != linkRegistry {
		t.Fatalf("local bound to %v", e)
	}
	if target, err := os.Readlink(proj.PackageDir(e)); err != nil || target != local {
		t.Errorf("slot -> %q (%v), want %q", target, err, local)
	}
	if got, _ := proj.Manifest.Get("dependencies", "local"); got != "link:"+local {
		t.Errorf("dependencies.local = %v", got)
	}
	if got := resolution(t, proj.Tree, tree.Binding{Name: "right", Parent: e.String()}); got != "npm:right@2.3.1" {
		t.Errorf("linked package's right = %s", got)
	}

	if err := i.Checkout(ctx, []string{"local"}); !errors.Is(err, errors.ErrCodeLinked) {
		t.Errorf("checkout of linked package: err = %v, want LINKED", err)
	}
}

func TestUpdateAmbiguousSelector(t *testing.T) {
	f := newFixture(t, packages{
		"a":      {"1.0.0": {"dependencies": map[string]any{"shared": "^1.0.0"}}},
		"b":      {"1.0.0": {"dependencies": map[string]any{"shared": "^2.0.0"}}},
		"shared": {"1.0.0": {}, "2.0.0": {}},
	})
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"a": "^1.0.0", "b": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	_, err := i.Update(ctx, []string{"shared"}, Options{})
	var ambiguous *AmbiguousSelectorError
	if !stderrors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousSelectorError", err)
	}
	if len(ambiguous.Matches) != 2 {
		t.Errorf("matches = %v", ambiguous.Matches)
	}
	if !errors.IsUserError(err) {
		t.Error("ambiguous selector is not a user error")
	}

	if _, err := i.Update(ctx, []string{"shared@^2.0.0"}, Options{}); err != nil {
		t.Errorf("range-qualified selector: %v", err)
	}
}

func TestUpdatePicksNewerVersion(t *testing.T) {
	f := newFixture(t, leftRight())
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	if _, err := i.Install(ctx, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	f.publish("right", "2.4.0", map[string]any{})
	i.Project().Close()

	i = f.open(dir, nil)
	if _, err := i.Update(ctx, []string{"right"}, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := resolution(t, i.Project().Tree, tree.Binding{Name: "right", Parent: "npm:left@1.0.0"}); got != "npm:right@2.4.0" {
		t.Errorf("right = %s, want npm:right@2.4.0", got)
	}
	if got, _ := i.Project().Manifest.Get("dependencies", "left"); got != "^1.0.0" {
		t.Errorf("update rewrote the declared range: %v", got)
	}
}

func TestBusy(t *testing.T) {
	f := newFixture(t, leftRight())
	f.block = make(chan struct{})
	f.entered = make(chan struct{}, 1)
	dir := t.TempDir()
	writeManifest(t, dir, `{"dependencies": {"left": "^1.0.0"}}`)

	i := f.open(dir, nil)
	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := i.Install(ctx, nil, Options{})
		done <- err
	}()
	<-f.entered

	_, err := i.Clean(ctx, true)
	var busy *BusyError
	if !stderrors.As(err, &busy) || busy.Running != "install" {
		t.Errorf("err = %v, want BusyError for install", err)
	}
	if !errors.Is(err, errors.ErrCodeBusy) {
		t.Error("BusyError carries no code")
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if _, err := i.Clean(ctx, true); err != nil {
		t.Errorf("installer still busy: %v", err)
	}
}

func TestProjectLocked(t *testing.T) {
	dir := t.TempDir()
	p, err := OpenProject(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if _, err := OpenProject(dir); !errors.Is(err, errors.ErrCodeLocked) {
		t.Errorf("second open: err = %v, want LOCKED", err)
	}
}

func TestFlightsShareResult(t *testing.T) {
	f := newFlights[int]()
	var calls int
	var mu sync.Mutex
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 8)
	for n := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[n], _ = f.Do(context.Background(), "k", func() (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				<-release
				return 42, nil
			})
		}()
	}
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("fn ran %d times", calls)
	}
	for _, r := range results {
		if r != 42 {
			t.Errorf("result = %d", r)
		}
	}
	if f.Len() != 1 {
		t.Errorf("keys = %d", f.Len())
	}
}
