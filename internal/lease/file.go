package lease

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileLease is a Lease backed by an exclusive flock on a file. The OS
// drops the lock when the holding process exits.
type FileLease struct {
	path string

	mu     sync.Mutex
	flock  *flock.Flock
	locked bool
}

var _ Lease = (*FileLease)(nil)

// NewFileLease returns a lease on the lock file at path.
func NewFileLease(path string) *FileLease {
	return &FileLease{path: path, flock: flock.New(path)}
}

// TryAcquire attempts the lock without blocking.
func (l *FileLease) TryAcquire(_ context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// Release unlocks the file. It is safe to call when not held.
func (l *FileLease) Release(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLease) Path() string {
	return l.path
}
