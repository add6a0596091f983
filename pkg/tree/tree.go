package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/matzehuels/stackpm/pkg/pkgname"
)

// Dependency is the entry for one resolved package: where its contents come
// from and how its own dependencies are bound.
type Dependency struct {
	Source  string
	Resolve map[string]pkgname.Exact
}

// Binding identifies a name binding in the tree. Parent is the exact package
// string of the installing package, or empty for a root binding.
type Binding struct {
	Name   string
	Parent string
}

// IsRoot reports whether the binding lives in the root resolve map.
func (b Binding) IsRoot() bool { return b.Parent == "" }

func (b Binding) String() string {
	if b.Parent == "" {
		return b.Name
	}
	return b.Parent + " > " + b.Name
}

// Tree is the install graph persisted as the lockfile.
//
// Root bindings map install names to exact packages. Every exact package that
// is reachable has a Dependency entry keyed by its "registry:name@version"
// string. Tree is safe for concurrent use.
type Tree struct {
	mu      sync.RWMutex
	resolve map[string]pkgname.Exact
	deps    map[string]*Dependency
	changed bool
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		resolve: make(map[string]pkgname.Exact),
		deps:    make(map[string]*Dependency),
	}
}

// Changed reports whether the tree was mutated since it was loaded or saved.
func (t *Tree) Changed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.changed
}

// Resolution returns the exact package bound to b.
func (t *Tree) Resolution(b Binding) (pkgname.Exact, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b.IsRoot() {
		e, ok := t.resolve[b.Name]
		return e, ok
	}
	dep, ok := t.deps[b.Parent]
	if !ok {
		return pkgname.Exact{}, false
	}
	e, ok := dep.Resolve[b.Name]
	return e, ok
}

// SetResolution binds b to e and returns the previous binding. The parent's
// dependency entry is created if missing.
func (t *Tree) SetResolution(b Binding, e pkgname.Exact) (prev pkgname.Exact, had bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.resolve
	if !b.IsRoot() {
		m = t.entry(b.Parent).Resolve
	}
	prev, had = m[b.Name]
	if had && prev.Equal(e) {
		return prev, had
	}
	m[b.Name] = e
	t.changed = true
	return prev, had
}

// RemoveResolution deletes the binding b.
func (t *Tree) RemoveResolution(b Binding) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.resolve
	if !b.IsRoot() {
		dep, ok := t.deps[b.Parent]
		if !ok {
			return false
		}
		m = dep.Resolve
	}
	if _, ok := m[b.Name]; !ok {
		return false
	}
	delete(m, b.Name)
	t.changed = true
	return true
}

// entry returns the dependency entry for key, creating it. Callers hold mu.
func (t *Tree) entry(key string) *Dependency {
	dep, ok := t.deps[key]
	if !ok {
		dep = &Dependency{Resolve: make(map[string]pkgname.Exact)}
		t.deps[key] = dep
		t.changed = true
	}
	return dep
}

// Dependency returns a copy of the entry for e.
func (t *Tree) Dependency(e pkgname.Exact) (Dependency, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	dep, ok := t.deps[e.String()]
	if !ok {
		return Dependency{}, false
	}
	return Dependency{Source: dep.Source, Resolve: maps.Clone(dep.Resolve)}, true
}

// SetSource records the source locator for e, creating its entry.
func (t *Tree) SetSource(e pkgname.Exact, source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dep := t.entry(e.String())
	if dep.Source != source {
		dep.Source = source
		t.changed = true
	}
}

// Packages returns every exact package with a dependency entry, sorted.
func (t *Tree) Packages() []pkgname.Exact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]pkgname.Exact, 0, len(t.deps))
	for key := range t.deps {
		e, err := pkgname.ParseExact(key)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	slices.SortFunc(out, pkgname.Exact.Compare)
	return out
}

// Roots returns a copy of the root resolve map.
func (t *Tree) Roots() map[string]pkgname.Exact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.resolve)
}

// Visit calls fn for every binding: root bindings first, then the bindings
// of each dependency entry, both in sorted order. It stops and returns true
// as soon as fn returns true.
func (t *Tree) Visit(fn func(e pkgname.Exact, b Binding) bool) bool {
	for _, v := range t.snapshot() {
		if fn(v.exact, v.binding) {
			return true
		}
	}
	return false
}

// VisitContext is Visit for callbacks that block or fail. It stops at the
// first error, when fn returns true, or when ctx is done.
func (t *Tree) VisitContext(ctx context.Context, fn func(ctx context.Context, e pkgname.Exact, b Binding) (bool, error)) (bool, error) {
	for _, v := range t.snapshot() {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		stop, err := fn(ctx, v.exact, v.binding)
		if err != nil || stop {
			return stop, err
		}
	}
	return false, nil
}

type visit struct {
	exact   pkgname.Exact
	binding Binding
}

// snapshot lists bindings so callbacks may mutate the tree.
func (t *Tree) snapshot() []visit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []visit
	for _, name := range slices.Sorted(maps.Keys(t.resolve)) {
		out = append(out, visit{t.resolve[name], Binding{Name: name}})
	}
	for _, parent := range slices.Sorted(maps.Keys(t.deps)) {
		dep := t.deps[parent]
		for _, name := range slices.Sorted(maps.Keys(dep.Resolve)) {
			out = append(out, visit{dep.Resolve[name], Binding{Name: name, Parent: parent}})
		}
	}
	return out
}

// BestMatch returns the highest version already in the tree that satisfies
// target.
func (t *Tree) BestMatch(target pkgname.Target) (pkgname.Exact, bool) {
	var best pkgname.Exact
	found := false
	consider := func(e pkgname.Exact) {
		if target.Has(e) && (!found || e.Compare(best) > 0) {
			best, found = e, true
		}
	}
	for _, e := range t.Packages() {
		consider(e)
	}
	t.Visit(func(e pkgname.Exact, _ Binding) bool {
		consider(e)
		return false
	})
	return best, found
}

// Select returns every binding matching selector "[registry:]name[@range]".
// The name matches the install name or a trailing path segment of the
// package name. All structural matches are returned; deciding whether they
// are ambiguous is up to the caller.
func (t *Tree) Select(selector string) ([]Binding, error) {
	registry, name, rng := splitSelector(selector)
	if name == "" {
		return nil, fmt.Errorf("empty selector %q", selector)
	}
	var out []Binding
	var rangeErr error
	t.Visit(func(e pkgname.Exact, b Binding) bool {
		if registry != "" && e.Registry != registry {
			return false
		}
		if b.Name != name && e.Name.Name != name && !strings.HasSuffix(e.Name.Name, "/"+name) {
			return false
		}
		if rng != "" {
			target, err := pkgname.NewTarget(e.Registry, e.Name.Name, rng)
			if err != nil {
				rangeErr = err
				return true
			}
			if !target.Has(e) {
				return false
			}
		}
		out = append(out, b)
		return false
	})
	return out, rangeErr
}

func splitSelector(s string) (registry, name, rng string) {
	if i := strings.IndexByte(s, ':'); i > 0 {
		registry, s = s[:i], s[i+1:]
	}
	start := 0
	if strings.HasPrefix(s, "@") {
		start = 1
	}
	if i := strings.IndexByte(s[start:], '@'); i >= 0 {
		return registry, s[:start+i], s[start+i+1:]
	}
	return registry, s, ""
}

// Prune removes dependency entries not reachable from the root bindings and
// bindings that point at packages without an entry. It returns the removed
// packages.
func (t *Tree) Prune() []pkgname.Exact {
	t.mu.Lock()
	defer t.mu.Unlock()

	reachable := make(map[string]bool)
	var walk func(key string)
	walk = func(key string) {
		if reachable[key] {
			return
		}
		dep, ok := t.deps[key]
		if !ok {
			return
		}
		reachable[key] = true
		for _, e := range dep.Resolve {
			walk(e.String())
		}
	}
	for _, e := range t.resolve {
		walk(e.String())
	}

	var removed []pkgname.Exact
	for key := range t.deps {
		if reachable[key] {
			continue
		}
		delete(t.deps, key)
		t.changed = true
		if e, err := pkgname.ParseExact(key); err == nil {
			removed = append(removed, e)
		}
	}
	for name, e := range t.resolve {
		if _, ok := t.deps[e.String()]; !ok {
			delete(t.resolve, name)
			t.changed = true
		}
	}
	for _, dep := range t.deps {
		for name, e := range dep.Resolve {
			if _, ok := t.deps[e.String()]; !ok {
				delete(dep.Resolve, name)
				t.changed = true
			}
		}
	}
	slices.SortFunc(removed, pkgname.Exact.Compare)
	return removed
}

// document is the persisted lockfile shape.
type document struct {
	Resolve      map[string]pkgname.Exact `json:"resolve"`
	Dependencies map[string]dependencyDoc `json:"dependencies"`
}

type dependencyDoc struct {
	Source  string                   `json:"source,omitempty"`
	Resolve map[string]pkgname.Exact `json:"resolve,omitempty"`
}

// Load reads a lockfile. A missing file yields an empty tree.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	t := New()
	maps.Copy(t.resolve, doc.Resolve)
	for key, d := range doc.Dependencies {
		if _, err := pkgname.ParseExact(key); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		dep := &Dependency{Source: d.Source, Resolve: make(map[string]pkgname.Exact, len(d.Resolve))}
		maps.Copy(dep.Resolve, d.Resolve)
		t.deps[key] = dep
	}
	return t, nil
}

// MarshalJSON encodes the tree in lockfile form with sorted keys.
func (t *Tree) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	doc := document{
		Resolve:      t.resolve,
		Dependencies: make(map[string]dependencyDoc, len(t.deps)),
	}
	for key, dep := range t.deps {
		doc.Dependencies[key] = dependencyDoc{Source: dep.Source, Resolve: dep.Resolve}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Save writes the lockfile atomically and clears the changed flag.
func (t *Tree) Save(path string) error {
	data, err := t.MarshalJSON()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lock-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	t.mu.Lock()
	t.changed = false
	t.mu.Unlock()
	return nil
}
