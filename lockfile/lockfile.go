// Package lockfile provides an exclusive-lock-protected read/modify/write
// primitive for small on-disk documents shared across processes.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the advisory lock cannot be acquired
// within the caller's timeout. No read or write has happened when it is
// returned.
var ErrLockTimeout = errors.New("timed out waiting for file lock")

const retryDelay = 25 * time.Millisecond

// Body receives the current contents of the document (nil if the file does
// not exist yet) and returns the contents to persist. Returning nil bytes
// with a nil error leaves the file untouched.
type Body func(current []byte) ([]byte, error)

// WithLock acquires an exclusive advisory lock guarding path, reads the
// current contents, invokes body, and atomically replaces the file with
// body's result via a temp-file rename. The lock is released on every exit
// path. The lock lives in a sidecar file so that the rename replacing the
// document never replaces the lock itself.
func WithLock(path string, timeout time.Duration, body Body) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return fmt.Errorf("acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return ErrLockTimeout
	}
	defer func() { _ = lock.Unlock() }()

	current, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		current = nil
	}

	updated, err := body(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	return replaceAtomic(path, updated)
}

// Read returns the current contents under a short-lived lock, or nil if the
// file does not exist.
func Read(path string, timeout time.Duration) ([]byte, error) {
	var out []byte
	err := WithLock(path, timeout, func(current []byte) ([]byte, error) {
		out = current
		return nil, nil
	})
	return out, err
}

func replaceAtomic(path string, data []byte) error {
	tmpPath := path + "." + randomToken() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func randomToken() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
