// Package lock guards a data directory against concurrent writers.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	amerrors "github.com/Aman-CERP/amannotes/internal/errors"
)

// FileName is the lock file created inside the data directory.
const FileName = ".amannotes.lock"

// DirLock is an exclusive cross-process lock on a data directory. Only one
// process at a time may open the index stores for writing.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// New creates a lock for dir. The lock file is <dir>/.amannotes.lock.
func New(dir string) *DirLock {
	path := filepath.Join(dir, FileName)
	return &DirLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Acquire takes the lock without blocking. It fails with
// ErrCodeIndexLocked when another process holds it.
func (l *DirLock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", l.path, err)
	}
	if !acquired {
		return amerrors.New(amerrors.ErrCodeIndexLocked, "index is in use by another process", nil).
			WithDetail("lock_file", l.path).
			WithSuggestion("Stop the other amannotes process (serve, watch or index) or use a different data directory.")
	}
	l.locked = true
	return nil
}

// Release drops the lock. Safe to call more than once.
func (l *DirLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *DirLock) Path() string {
	return l.path
}

// IsLocked returns true if this DirLock holds the lock.
func (l *DirLock) IsLocked() bool {
	return l.locked
}
