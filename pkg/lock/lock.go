// Package lock keeps two invocations from mutating the same corpus at once.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileName is the lock file created in the corpus root.
const FileName = ".episodic.lock"

var ErrLocked = errors.New("lock: another invocation is running")

// Lock is a held single-instance lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the lock at path without blocking. It fails with ErrLocked
// when another holder exists.
func Acquire(path string) (*Lock, error) {
	f, err := acquire(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. Safe to call on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := release(l.path, l.file)
	l.file = nil
	return err
}

// Holder returns the pid recorded in the lock file, or 0 when unknown.
func Holder(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0
	}
	return pid
}

func lockedError(path string) error {
	if pid := Holder(path); pid > 0 {
		return fmt.Errorf("%w (pid %d holds %s)", ErrLocked, pid, path)
	}
	return fmt.Errorf("%w (%s)", ErrLocked, path)
}
