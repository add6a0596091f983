package install

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/pkgname"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// linkSlot points slot at target. The link is only swapped when it points
// elsewhere; a real directory that is not a checkout is replaced.
func (op *operation) linkSlot(ctx context.Context, e pkgname.Exact, slot, target string) error {
	if cur, err := os.Readlink(slot); err == nil {
		if cur == target {
			return nil
		}
		if err := os.Remove(slot); err != nil {
			return fmt.Errorf("unlink %s: %w", slot, err)
		}
	} else if _, err := os.Lstat(slot); err == nil {
		op.logger.Warn("replacing custom package folder", "package", e, "dir", slot)
		if err := os.RemoveAll(slot); err != nil {
			return fmt.Errorf("remove %s: %w", slot, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(slot), 0o755); err != nil {
		return err
	}
	if err := os.Symlink(target, slot); err != nil {
		return fmt.Errorf("link %s: %w", slot, err)
	}
	op.hooks.Install.OnLink(ctx, e.String(), target)
	return nil
}

// linkBins creates the command entry points declared by a root package.
func (op *operation) linkBins(e pkgname.Exact, inst *registry.Installed) error {
	if len(inst.Config.Bin) == 0 {
		return nil
	}
	dir := op.project.BinPath()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	slot := op.project.PackageDir(e)
	for _, cmd := range slices.Sorted(maps.Keys(inst.Config.Bin)) {
		script := inst.Config.Bin[cmd]
		if path.Base(cmd) != cmd || errors.ValidatePath(script) != nil {
			op.logger.Warn("ignoring bin entry", "package", e, "command", cmd, "script", script)
			continue
		}
		link := filepath.Join(dir, cmd)
		target := filepath.Join(slot, filepath.FromSlash(script))
		if cur, err := os.Readlink(link); err == nil && cur == target {
			continue
		}
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("link bin %s: %w", cmd, err)
		}
		op.logger.Debug("linked bin", "command", cmd, "package", e)
	}
	return nil
}
