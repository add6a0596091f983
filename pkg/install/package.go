package install

import (
	"context"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/source"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// Registries under which resource installs are recorded in the tree.
const (
	gitRegistry  = "git"
	urlRegistry  = "url"
	linkRegistry = "link"
)

// run installs a spawned dependency. Optional dependencies that fail are
// skipped with a warning.
func (op *operation) run(in Install) error {
	if _, err := op.installPackage(op.ctx, in); err != nil {
		if in.Type == manifest.Optional {
			op.logger.Warn("skipping optional dependency", "package", in.Name, "parent", in.Parent, "err", errors.UserMessage(err))
			return nil
		}
		return wrapChain(in.chain(), err)
	}
	return nil
}

// installPackage installs one binding. Peer installs are keyed without a
// parent so they share the root binding.
func (op *operation) installPackage(ctx context.Context, in Install) (resolved, error) {
	return op.installs.Do(ctx, in.key(), func() (resolved, error) {
		switch t := in.Target.(type) {
		case pkgname.Target:
			return op.installTarget(ctx, in, t)
		case pkgname.Resource:
			return op.installResource(ctx, in, t)
		}
		return resolved{}, errors.New(errors.ErrCodeInvalidTarget, "no target for %q", in.Name)
	})
}

func (op *operation) installTarget(ctx context.Context, in Install, t pkgname.Target) (resolved, error) {
	b := in.binding()
	if op.opts.Lock || (in.nested() && !op.opts.Latest) {
		if e, src, ok := op.existing(b, t); ok {
			ov := in.Override
			if ov == nil {
				ov = registry.MatchOverride(op.overrides, e, src)
			}
			if err := op.installSource(ctx, in, e, src, ov); err != nil {
				return resolved{}, err
			}
			return resolved{Exact: e, Pinned: t}, nil
		}
	}

	res, err := op.registry.Resolve(ctx, t, nil, op.opts.PreferUnstable)
	if err != nil {
		return resolved{}, err
	}
	if res.Deprecated != "" {
		op.logger.Warn("deprecated", "package", res.Exact, "reason", res.Deprecated)
	}

	user := in.Override
	if user == nil {
		user = registry.MatchOverride(op.overrides, res.Exact, res.Source)
	}
	ov := registry.LayerOverride(res.Exact, res.RegistryOverride, user)
	if ov != nil && (ov.Fresh || ov == in.Override) {
		op.project.Manifest.SetOverride(*ov)
	}

	op.bind(b, res.Exact, res.Source)
	if op.opts.Dedupe {
		op.dedupe(res.Exact)
	}
	if err := op.installSource(ctx, in, res.Exact, res.Source, ov); err != nil {
		return resolved{}, err
	}
	return resolved{Exact: res.Exact, Pinned: res.Pinned}, nil
}

// existing finds a tree resolution for b that satisfies t: the current
// binding if it still matches, otherwise the best version in the tree.
func (op *operation) existing(b tree.Binding, t pkgname.Target) (pkgname.Exact, string, bool) {
	e, ok := op.project.Tree.Resolution(b)
	if !ok || e.Package() != t.Package() || !(t.Has(e) || t.IsTag()) {
		e, ok = op.project.Tree.BestMatch(t)
	}
	if !ok {
		return pkgname.Exact{}, "", false
	}
	dep, ok := op.project.Tree.Dependency(e)
	if !ok || dep.Source == "" {
		return pkgname.Exact{}, "", false
	}
	op.bind(b, e, dep.Source)
	return e, dep.Source, true
}

func (op *operation) installResource(ctx context.Context, in Install, r pkgname.Resource) (resolved, error) {
	b := in.binding()
	var exact pkgname.Exact
	var src string
	if op.opts.Lock && !isLocal(r.Locator) {
		if e, ok := op.project.Tree.Resolution(b); ok {
			if dep, ok := op.project.Tree.Dependency(e); ok && sameOrigin(r.Locator, dep.Source) {
				exact, src = e, dep.Source
			}
		}
	}
	if src == "" {
		var err error
		if src, err = op.registry.ResolveSource(ctx, r.Locator, in.contextDir, op.project.Dir); err != nil {
			return resolved{}, err
		}
		if exact, err = resourceExact(in.Name, src); err != nil {
			return resolved{}, err
		}
	}

	ov := in.Override
	if ov != nil {
		op.project.Manifest.SetOverride(*ov)
	} else {
		ov = registry.MatchOverride(op.overrides, exact, r.Locator)
	}
	op.bind(b, exact, src)
	if err := op.installSource(ctx, in, exact, src, ov); err != nil {
		return resolved{}, err
	}
	return resolved{Exact: exact, Pinned: r}, nil
}

// bind records e as the resolution of b.
func (op *operation) bind(b tree.Binding, e pkgname.Exact, src string) {
	op.project.Tree.SetSource(e, src)
	if prev, had := op.project.Tree.SetResolution(b, e); had && !prev.Equal(e) {
		op.logger.Debug("rebound", "name", b.Name, "parent", b.Parent, "from", prev, "to", e)
	}
}

// installSource makes e available in its project slot and spawns its
// dependencies. The fetch runs once per exact|source; bins are linked for
// every root binding.
func (op *operation) installSource(ctx context.Context, in Install, e pkgname.Exact, src string, ov *registry.Override) error {
	inst, err := op.sources.Do(ctx, e.String()+"|"+src, func() (*registry.Installed, error) {
		return op.fetchSource(ctx, in, e, src, ov)
	})
	if err != nil {
		return err
	}
	if in.Parent == "" {
		return op.linkBins(e, inst)
	}
	return nil
}

func (op *operation) fetchSource(ctx context.Context, in Install, e pkgname.Exact, src string, ov *registry.Override) (*registry.Installed, error) {
	slot := op.project.PackageDir(e)
	var inst *registry.Installed
	if isCheckout(slot) && !op.opts.FullVerify {
		cfg, err := registry.ReadConfig(slot)
		if err != nil {
			return nil, err
		}
		inst = &registry.Installed{Config: cfg, Override: ov, Dir: slot, CheckedOut: true}
	} else {
		var err error
		inst, err = op.registry.EnsureInstall(ctx, src, registry.EnsureOptions{
			Override:              ov,
			Local:                 slot,
			FullVerify:            op.opts.FullVerify,
			OnVerificationFailure: op.prompter.Verification,
		})
		if err != nil {
			return nil, err
		}
		if !inst.CheckedOut {
			if err := op.linkSlot(ctx, e, slot, inst.Dir); err != nil {
				return nil, err
			}
		}
	}
	if inst.Changed {
		op.logger.Info("installed", "package", e)
	}
	op.expand(in, e, inst)
	return inst, nil
}

// expand spawns the dependencies declared by the package installed as in.
// The caller does not wait for them: a cycle re-enters a binding that is
// already memoized instead of waiting on itself.
func (op *operation) expand(in Install, e pkgname.Exact, inst *registry.Installed) {
	parent := e.String()
	reg := op.dependencyRegistry(e)
	ancestors := in.chain()

	edges := []struct {
		deps map[string]string
		typ  manifest.DepType
	}{
		{inst.Config.Dependencies, manifest.Secondary},
		{inst.Config.OptionalDependencies, manifest.Optional},
		{inst.Config.PeerDependencies, manifest.Peer},
	}
	for _, edge := range edges {
		for _, name := range slices.Sorted(maps.Keys(edge.deps)) {
			child := Install{
				Name:       name,
				Parent:     parent,
				Type:       edge.typ,
				ancestors:  ancestors,
				contextDir: inst.Dir,
			}
			if edge.typ == manifest.Peer {
				child.Parent = ""
			}
			ref, err := pkgname.ParseDeclared(name, edge.deps[name], reg)
			if err != nil {
				op.group.Go(func() error { return wrapChain(child.chain(), err) })
				continue
			}
			child.Target = ref
			op.rememberSecondary(parent, name, ref)
			op.group.Go(func() error { return op.run(child) })
		}
	}
}

// dependencyRegistry is the registry bare ranges declared by e refer to:
// its own registry when that is a registry endpoint, otherwise the default.
func (op *operation) dependencyRegistry(e pkgname.Exact) string {
	if _, err := op.registry.Endpoint(e.Registry); err == nil {
		return e.Registry
	}
	return op.defaultRegistry
}

// dedupe rebinds every older resolution of e's package whose declared
// range accepts e. The old version is orphaned and pruned at clean time.
func (op *operation) dedupe(e pkgname.Exact) {
	op.project.Tree.Visit(func(other pkgname.Exact, b tree.Binding) bool {
		if other.Package() != e.Package() || other.Compare(e) >= 0 {
			return false
		}
		declared, ok := op.declared(b)
		if !ok {
			return false
		}
		if t, ok := declared.(pkgname.Target); ok && t.Has(e) {
			op.project.Tree.SetResolution(b, e)
			op.logger.Debug("deduped", "name", b.Name, "parent", b.Parent, "from", other, "to", e)
		}
		return false
	})
}

// declared returns the range b was declared with: a primary range for root
// bindings, the parent's configuration otherwise.
func (op *operation) declared(b tree.Binding) (pkgname.Ref, bool) {
	if b.IsRoot() {
		pr, ok := op.primary[b.Name]
		return pr.Target, ok
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	refs, ok := op.secondary[b.Parent]
	if !ok {
		refs = op.loadSecondary(b.Parent)
		op.secondary[b.Parent] = refs
	}
	ref, ok := refs[b.Name]
	return ref, ok
}

func (op *operation) rememberSecondary(parent, name string, ref pkgname.Ref) {
	op.mu.Lock()
	defer op.mu.Unlock()
	refs, ok := op.secondary[parent]
	if !ok {
		refs = make(map[string]pkgname.Ref)
		op.secondary[parent] = refs
	}
	refs[name] = ref
}

// loadSecondary reads the declared ranges of an installed package from its
// slot. Callers hold op.mu.
func (op *operation) loadSecondary(parent string) map[string]pkgname.Ref {
	refs := make(map[string]pkgname.Ref)
	e, err := pkgname.ParseExact(parent)
	if err != nil {
		return refs
	}
	cfg, err := registry.ReadConfig(op.project.PackageDir(e))
	if err != nil {
		op.logger.Debug("no configuration", "package", parent, "err", err)
		return refs
	}
	reg := op.dependencyRegistry(e)
	for _, deps := range []map[string]string{cfg.PeerDependencies, cfg.OptionalDependencies, cfg.Dependencies} {
		for name, value := range deps {
			if ref, err := pkgname.ParseDeclared(name, value, reg); err == nil {
				refs[name] = ref
			}
		}
	}
	return refs
}

// resourceExact names a resource install in the tree. Git sources use the
// short commit; other sources a short hash of the resolved locator.
func resourceExact(name, src string) (pkgname.Exact, error) {
	loc, err := source.ParseLocator(src)
	if err != nil {
		return pkgname.Exact{}, err
	}
	reg, version := urlRegistry, ""
	switch loc.Kind() {
	case source.KindGit:
		reg = gitRegistry
		if source.IsCommit(loc.Fragment) {
			version = loc.Fragment[:12]
		}
	case source.KindLink:
		reg = linkRegistry
	}
	if version == "" {
		version = cache.Digest(src, 12)
	}
	return pkgname.NewExact(reg, name, version)
}

// isLocal reports whether locator points at the local filesystem. Local
// sources are re-resolved on every install.
func isLocal(locator string) bool {
	return strings.HasPrefix(locator, "link:") || strings.HasPrefix(locator, "file:")
}

// sameOrigin reports whether a resolved source came from declared, which
// may still carry an unpinned fragment.
func sameOrigin(declared, resolved string) bool {
	d, _, _ := strings.Cut(declared, "#")
	r, _, _ := strings.Cut(resolved, "#")
	return d == r
}

// isCheckout reports whether slot is a real directory rather than a link
// into the store.
func isCheckout(slot string) bool {
	info, err := os.Lstat(slot)
	return err == nil && info.IsDir()
}
