package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/matzehuels/stackpm/pkg/errors"
)

// LockFileName is the lock file created next to the manifest.
const LockFileName = ".stackpm.lock"

// Lock is an exclusive lock on a project directory.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the project lock in dir without waiting. A lock held by
// another process fails with a LOCKED error.
func Acquire(dir string) (*Lock, error) {
	fl := flock.New(filepath.Join(dir, LockFileName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock project: %w", err)
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeLocked, "project %s is locked by another stackpm process", dir)
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
