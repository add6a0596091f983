package source

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// Link handles "link:<path>" locators. Linked packages are never copied:
// Download replaces dest with a symlink to the target directory.
type Link struct{}

// Resolve checks that an absolute link target is a directory. Relative
// targets are resolved by the registry layer against the installing
// package before they get here.
func (Link) Resolve(_ context.Context, loc Locator) (Locator, error) {
	if filepath.IsAbs(loc.Path()) {
		if err := requireDir(loc.Path()); err != nil {
			return Locator{}, err
		}
	}
	return loc, nil
}

// Download points dest at the link target.
func (Link) Download(_ context.Context, loc Locator, dest string) error {
	target, err := filepath.Abs(loc.Path())
	if err != nil {
		return err
	}
	if err := requireDir(target); err != nil {
		return err
	}
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	return os.Symlink(target, dest)
}

// File handles "file:<path>" locators: a local archive is extracted, a
// local directory is copied.
type File struct{}

// Resolve returns loc unchanged.
func (File) Resolve(_ context.Context, loc Locator) (Locator, error) { return loc, nil }

// Download extracts or copies the file target into dest.
func (File) Download(_ context.Context, loc Locator, dest string) error {
	path := loc.Path()
	if isArchive(path) {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeNotFound, err, "open %s", path)
		}
		defer f.Close()
		return Extract(f, dest)
	}
	if err := requireDir(path); err != nil {
		return err
	}
	return CopyDir(path, dest)
}

func isArchive(path string) bool {
	for _, ext := range []string{".tgz", ".tar.gz", ".tar"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNotFound, err, "link target %s", path)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeInvalidTarget, "link target %s is not a directory", path)
	}
	return nil
}

// CopyDir copies the regular files and directories under src into dst.
// Symlinks and special files are skipped, matching archive extraction.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			return copyFile(path, target)
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	return writeFile(dst, io.Reader(in), info.Mode())
}
