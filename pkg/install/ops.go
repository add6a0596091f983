package install

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/source"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// Install installs the requested packages and their dependencies, prunes
// what is no longer reachable and saves the project. Fresh installs record
// their primary range. An empty list reinstalls the manifest's primary
// ranges in locked mode. It reports whether the project files changed.
func (i *Installer) Install(ctx context.Context, installs []Install, opts Options) (bool, error) {
	op, err := i.begin(ctx, "install", opts)
	if err != nil {
		return false, err
	}
	defer op.end()

	fresh := true
	if len(installs) == 0 {
		op.opts.Lock = true
		installs = op.primaryInstalls()
		fresh = false
	}
	return op.finish(op.installAll(installs, fresh))
}

// Update re-resolves the packages matched by selectors against their
// declared ranges. Each selector must match a single distinct package.
func (i *Installer) Update(ctx context.Context, selectors []string, opts Options) (bool, error) {
	op, err := i.begin(ctx, "update", opts)
	if err != nil {
		return false, err
	}
	defer op.end()
	op.opts.Latest = true
	op.opts.Lock = false

	var installs []Install
	for _, sel := range selectors {
		bindings, _, err := op.selectOne(sel)
		if err != nil {
			return false, err
		}
		for _, b := range bindings {
			declared, ok := op.declared(b)
			if !ok {
				op.logger.Warn("no declared range, skipping", "name", b.Name, "parent", b.Parent)
				continue
			}
			in := Install{Name: b.Name, Parent: b.Parent, Target: declared, Type: manifest.Secondary}
			if b.IsRoot() {
				in.Type = op.primary[b.Name].Type
			} else {
				in.ancestors = []string{b.Parent}
				if e, err := pkgname.ParseExact(b.Parent); err == nil {
					in.contextDir = op.project.PackageDir(e)
				}
			}
			installs = append(installs, in)
		}
	}
	return op.finish(op.installAll(installs, false))
}

// Link binds name to the directory at dir. The rest of the tree is
// installed in locked mode. An empty name is inferred from dir.
func (i *Installer) Link(ctx context.Context, name, dir string, opts Options) (bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeInvalidPath, err, "link target %q", dir)
	}
	ref := pkgname.Resource{Locator: "link:" + abs}
	if name == "" {
		name = ref.InstallName()
	}

	op, err := i.begin(ctx, "link", opts)
	if err != nil {
		return false, err
	}
	defer op.end()
	op.opts.Lock = true

	typ := manifest.Primary
	if pr, ok := op.primary[name]; ok {
		typ = pr.Type
	}
	return op.finish(op.installAll([]Install{{Name: name, Target: ref, Type: typ}}, true))
}

// Checkout replaces the store links of the matched packages with editable
// copies. Packages linked outside the store and packages already checked
// out are refused.
func (i *Installer) Checkout(ctx context.Context, selectors []string) error {
	op, err := i.begin(ctx, "checkout", Options{})
	if err != nil {
		return err
	}
	defer op.end()

	for _, sel := range selectors {
		_, e, err := op.selectOne(sel)
		if err != nil {
			return err
		}
		if err := op.checkout(e); err != nil {
			return err
		}
	}
	return nil
}

func (op *operation) checkout(e pkgname.Exact) error {
	slot := op.project.PackageDir(e)
	info, err := os.Lstat(slot)
	if err != nil {
		return errors.New(errors.ErrCodeNotInstalled, "%s is not installed", e)
	}
	if info.IsDir() {
		return errors.New(errors.ErrCodeCheckedOut, "%s is already checked out at %s", e, slot)
	}
	target, err := os.Readlink(slot)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotInstalled, err, "%s is not installed", e)
	}
	if !within(op.registry.StoreDir(), target) {
		return errors.New(errors.ErrCodeLinked, "%s is linked to %s", e, target)
	}

	tmp := slot + ".checkout"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := source.CopyDir(target, tmp); err != nil {
		os.RemoveAll(tmp)
		return errors.Wrap(errors.ErrCodeInternal, err, "copy %s", e)
	}
	if err := os.Remove(slot); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, slot); err != nil {
		return err
	}
	op.logger.Info("checked out", "package", e, "dir", slot)
	return nil
}

// Uninstall removes the primary ranges and root bindings of names, then
// cleans the project.
func (i *Installer) Uninstall(ctx context.Context, names []string) (bool, error) {
	op, err := i.begin(ctx, "uninstall", Options{})
	if err != nil {
		return false, err
	}
	defer op.end()

	for _, name := range names {
		_, declared := op.primary[name]
		_, bound := op.project.Tree.Resolution(tree.Binding{Name: name})
		if !declared && !bound {
			return false, errors.New(errors.ErrCodeNotInstalled, "%q is not installed", name)
		}
	}
	for _, name := range names {
		op.project.Manifest.RemovePrimaryRange(name)
		op.project.Tree.RemoveResolution(tree.Binding{Name: name})
		op.logger.Debug("uninstalled", "name", name)
	}
	return op.finish(nil)
}

// Clean prunes unreachable tree entries and package slots. With save the
// project is written; otherwise it only reports whether anything changed.
func (i *Installer) Clean(ctx context.Context, save bool) (bool, error) {
	op, err := i.begin(ctx, "clean", Options{})
	if err != nil {
		return false, err
	}
	defer op.end()

	if !save {
		if err := op.clean(); err != nil {
			return false, err
		}
		return op.project.Changed(), nil
	}
	return op.finish(nil)
}

// installAll spawns the top-level installs and waits for every task of
// the operation.
func (op *operation) installAll(installs []Install, fresh bool) error {
	normalized := make([]Install, 0, len(installs))
	for _, in := range installs {
		in, err := normalize(in)
		if err != nil {
			return err
		}
		normalized = append(normalized, in)
	}
	for _, in := range normalized {
		op.group.Go(func() error {
			r, err := op.installPackage(op.ctx, in)
			if err != nil {
				return wrapChain(in.chain(), err)
			}
			if fresh && in.Parent == "" {
				op.recordPrimary(in, r)
			}
			return nil
		})
	}
	return op.group.Wait()
}

func normalize(in Install) (Install, error) {
	if in.Target == nil {
		return in, errors.New(errors.ErrCodeInvalidInput, "install %q has no target", in.Name)
	}
	if in.Name == "" {
		switch t := in.Target.(type) {
		case pkgname.Target:
			in.Name = t.InstallName()
		case pkgname.Resource:
			in.Name = t.InstallName()
		}
		if in.Name == "" {
			return in, errors.New(errors.ErrCodeInvalidInput, "cannot infer an install name for %s", in.Target)
		}
	}
	if in.Parent == "" && in.Type == manifest.Secondary {
		in.Type = manifest.Primary
	}
	return in, nil
}

// recordPrimary writes the range of a fresh top-level install, replacing
// any range already declared for the name.
func (op *operation) recordPrimary(in Install, r resolved) {
	op.project.Manifest.SetPrimaryRange(in.Name, manifest.PrimaryRange{Type: in.Type, Target: r.Pinned}, op.defaultRegistry)
}

func (op *operation) primaryInstalls() []Install {
	installs := make([]Install, 0, len(op.primary))
	for _, name := range slices.Sorted(maps.Keys(op.primary)) {
		pr := op.primary[name]
		installs = append(installs, Install{Name: name, Target: pr.Target, Type: pr.Type})
	}
	return installs
}

// selectOne resolves a selector to its bindings, which must all share one
// exact package.
func (op *operation) selectOne(sel string) ([]tree.Binding, pkgname.Exact, error) {
	bindings, err := op.project.Tree.Select(sel)
	if err != nil {
		return nil, pkgname.Exact{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid selector %q", sel)
	}
	if len(bindings) == 0 {
		return nil, pkgname.Exact{}, errors.New(errors.ErrCodeNotInstalled, "no installed package matches %q", sel)
	}
	distinct := make(map[string]pkgname.Exact)
	for _, b := range bindings {
		if e, ok := op.project.Tree.Resolution(b); ok {
			distinct[e.String()] = e
		}
	}
	if len(distinct) > 1 {
		return nil, pkgname.Exact{}, &AmbiguousSelectorError{Selector: sel, Matches: slices.Sorted(maps.Keys(distinct))}
	}
	var e pkgname.Exact
	for _, v := range distinct {
		e = v
	}
	return bindings, e, nil
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
