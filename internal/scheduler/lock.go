package scheduler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created in the data directory while a scheduler runs.
// Only a process that already holds the search index lock starts a
// scheduler, so this lock never decides who runs the workers. It marks that
// they are running, for status reporting.
const LockFileName = "scheduler.lock"

// processLock marks a running scheduler in the data directory. Works on
// Unix and Windows.
type processLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newProcessLock(dataDir string) *processLock {
	path := filepath.Join(dataDir, LockFileName)
	return &processLock{path: path, flock: flock.New(path)}
}

// tryLock acquires the lock without blocking. Returns false if another
// process holds it.
func (l *processLock) tryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	l.locked = acquired
	return acquired, nil
}

// unlock releases the lock. Safe to call when not held.
func (l *processLock) unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release scheduler lock: %w", err)
	}
	return nil
}
