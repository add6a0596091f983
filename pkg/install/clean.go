package install

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/tree"
)

// clean drops root bindings without a primary range, prunes unreachable
// tree entries and removes package slots nothing resolves to. Checked-out
// slots are only removed after confirmation.
func (op *operation) clean() error {
	primary, err := op.project.Manifest.PrimaryRanges(op.defaultRegistry)
	if err != nil {
		return err
	}
	for name := range op.project.Tree.Roots() {
		if _, ok := primary[name]; !ok {
			op.project.Tree.RemoveResolution(tree.Binding{Name: name})
			op.logger.Debug("dropped root binding", "name", name)
		}
	}
	for _, e := range op.project.Tree.Prune() {
		op.logger.Debug("pruned", "package", e)
	}

	keep := make(map[string]bool)
	for _, e := range op.project.Tree.Packages() {
		keep[op.project.PackageDir(e)] = true
	}
	return op.cleanDisk(keep)
}

func (op *operation) cleanDisk(keep map[string]bool) error {
	root := op.project.PackagesPath()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	var links, checkouts, dirs []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == BinDir {
			return filepath.SkipDir
		}
		if !isSlot(rel) {
			if d.IsDir() {
				dirs = append(dirs, p)
			}
			return nil
		}
		switch {
		case keep[p]:
		case d.Type()&fs.ModeSymlink != 0:
			links = append(links, p)
		case d.IsDir():
			checkouts = append(checkouts, p)
		}
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	for _, p := range links {
		if err := os.Remove(p); err != nil {
			return err
		}
		op.logger.Debug("removed package", "dir", p)
	}
	for _, p := range checkouts {
		rel, _ := filepath.Rel(root, p)
		ok, err := op.prompter.Confirm(op.ctx, fmt.Sprintf("Remove checked-out package %s?", filepath.ToSlash(rel)), false)
		if err != nil {
			return err
		}
		if !ok {
			op.logger.Warn("keeping checked-out package", "dir", p)
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return err
		}
		op.logger.Info("removed checked-out package", "dir", p)
	}

	if err := op.cleanBins(); err != nil {
		return err
	}
	removeEmptyDirs(dirs)
	return nil
}

// cleanBins removes entry points whose script is gone.
func (op *operation) cleanBins() error {
	dir := op.project.BinPath()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	remaining := len(entries)
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := os.Remove(p); err != nil {
				return err
			}
			remaining--
			op.logger.Debug("removed bin", "command", entry.Name())
		}
	}
	if remaining > 0 {
		return nil
	}
	return os.Remove(dir)
}

// removeEmptyDirs removes the directories in dirs that are empty, deepest
// first.
func removeEmptyDirs(dirs []string) {
	slices.SortFunc(dirs, func(a, b string) int { return len(b) - len(a) })
	for _, d := range dirs {
		if entries, err := os.ReadDir(d); err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
}

// isSlot reports whether rel, relative to the package directory, names a
// package slot ("<registry>/<name>@<version>").
func isSlot(rel string) bool {
	reg, name, ok := strings.Cut(filepath.ToSlash(rel), "/")
	if !ok {
		return false
	}
	_, err := pkgname.ParseExact(reg + ":" + name)
	return err == nil
}
