package instance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning means another watchdog holds the lock file.
var ErrAlreadyRunning = errors.New("another minermon instance is running")

// Lock is a held single-instance lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes a non-blocking exclusive lock on path. An empty path disables the
// guard and returns a nil Lock, which is safe to Release.
func Acquire(path string) (*Lock, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w (lock held: %s)", ErrAlreadyRunning, path)
	}
	return &Lock{fl: fl}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
