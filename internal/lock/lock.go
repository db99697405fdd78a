// Package lock serializes backup jobs across processes with a file
// lock.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// DefaultPath returns the lock file used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "ncb.lock")
}

// Lock is an advisory file lock held for the duration of a job.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the lock without blocking. A held lock means another
// job is running and the caller should bail out.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another backup job holds %s", path)
	}
	return &Lock{fl: fl}, nil
}

func (l *Lock) Release() error {
	return l.fl.Unlock()
}
