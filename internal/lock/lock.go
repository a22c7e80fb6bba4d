// Package lock provides the advisory single-instance lock guarding a store
// directory. A Lock is an explicitly acquired and released resource; nothing
// about it is process-global, so independent stores can coexist in tests.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/snix/internal/apperr"
)

var errWouldBlock = errors.New("lock: would block")

// HeldError reports that another holder owns the lock.
type HeldError struct {
	Path string
	PID  int // 0 when the holder could not be determined
}

func (e *HeldError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("lock: %s is held by pid %d", e.Path, e.PID)
	}
	return fmt.Sprintf("lock: %s is held by another process", e.Path)
}

// Unwrap lets callers match apperr.ErrStoreLocked.
func (e *HeldError) Unwrap() error { return apperr.ErrStoreLocked }

// Lock is an acquired advisory lock.
type Lock struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// Acquire takes the lock at path without blocking. If another holder owns
// it, Acquire fails with a *HeldError and leaves the lock file untouched.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w: %w", path, apperr.ErrIO, err)
	}
	if err := tryLock(f); err != nil {
		_ = f.Close()
		if errors.Is(err, errWouldBlock) {
			return nil, &HeldError{Path: path, PID: HolderPID(path)}
		}
		return nil, fmt.Errorf("lock: acquire %s: %w: %w", path, apperr.ErrIO, err)
	}

	pid := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt(pid, 0)
	}
	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Held reports whether Release has not been called yet.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f != nil
}

// Release unlocks and closes the lock file. The file itself stays in place
// so that a racing Acquire always locks the same inode. Safe to call twice.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	unlockErr := unlock(f)
	closeErr := f.Close()
	if unlockErr != nil {
		return fmt.Errorf("lock: release %s: %w", l.path, unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("lock: close %s: %w", l.path, closeErr)
	}
	return nil
}

// HolderPID returns the pid recorded in the lock file, or 0.
func HolderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}
