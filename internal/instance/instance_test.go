package instance

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquire_Disabled(t *testing.T) {
	l, err := Acquire("")
	if err != nil || l != nil {
		t.Fatalf("empty path should disable the guard: %v %v", l, err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release of nil lock: %v", err)
	}
}

func TestAcquire_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "minermon.lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := Acquire(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	_ = again.Release()
}
