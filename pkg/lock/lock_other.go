//go:build !unix

package lock

import (
	"errors"
	"fmt"
	"os"
)

// Without flock the lock is an exclusively created file. A crashed holder
// leaves it behind and it must be removed by hand.
func acquire(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, lockedError(path)
	}
	if err != nil {
		return nil, fmt.Errorf("lock: create %s: %w", path, err)
	}
	return f, nil
}

func release(path string, f *os.File) error {
	closeErr := f.Close()
	removeErr := os.Remove(path)
	return errors.Join(closeErr, removeErr)
}
