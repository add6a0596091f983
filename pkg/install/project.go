package install

import (
	"path/filepath"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/tree"
)

const (
	// LockfileName is the resolve tree file next to the manifest.
	LockfileName = "stackpm.lock"

	// PackagesDir holds the project's package slots.
	PackagesDir = "stackpm_packages"

	// BinDir holds command entry points, relative to PackagesDir.
	BinDir = ".bin"
)

// Project is a manifest and resolve tree held under the project lock.
type Project struct {
	Dir      string
	Manifest *manifest.Manifest
	Tree     *tree.Tree

	lock *manifest.Lock
}

// OpenProject locks dir and loads its manifest and resolve tree. Missing
// files load as empty. Close releases the lock.
func OpenProject(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "project directory %q", dir)
	}
	lock, err := manifest.Acquire(abs)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(filepath.Join(abs, manifest.FileName))
	if err != nil {
		lock.Release()
		return nil, err
	}
	t, err := tree.Load(filepath.Join(abs, LockfileName))
	if err != nil {
		lock.Release()
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "load %s", LockfileName)
	}
	return &Project{Dir: abs, Manifest: m, Tree: t, lock: lock}, nil
}

// LockfilePath returns the path of the resolve tree file.
func (p *Project) LockfilePath() string { return filepath.Join(p.Dir, LockfileName) }

// PackagesPath returns the local package directory.
func (p *Project) PackagesPath() string { return filepath.Join(p.Dir, PackagesDir) }

// BinPath returns the command entry point directory.
func (p *Project) BinPath() string { return filepath.Join(p.Dir, PackagesDir, BinDir) }

// PackageDir returns the slot of e: "<registry>/<name>@<version>".
func (p *Project) PackageDir(e pkgname.Exact) string {
	return filepath.Join(p.PackagesPath(), e.Registry, filepath.FromSlash(e.Name.Name)+"@"+e.Version)
}

// Changed reports whether the manifest or the tree has unsaved changes.
func (p *Project) Changed() bool {
	return p.Manifest.Changed() || p.Tree.Changed()
}

// Save writes whatever changed and reports whether anything was written.
func (p *Project) Save() (bool, error) {
	changed := false
	if p.Tree.Changed() {
		if err := p.Tree.Save(p.LockfilePath()); err != nil {
			return false, errors.Wrap(errors.ErrCodeInternal, err, "save %s", LockfileName)
		}
		changed = true
	}
	if p.Manifest.Changed() {
		if err := p.Manifest.Save(); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// Close releases the project lock. Unsaved changes are discarded.
func (p *Project) Close() error {
	if p.lock == nil {
		return nil
	}
	err := p.lock.Release()
	p.lock = nil
	return err
}
