package storage

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when the store lock stays held by another
// process for longer than the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for store lock")

const lockPollInterval = 25 * time.Millisecond

// FileLock is an advisory exclusive lock on a file, shared by every flow
// process pointed at the same data directory. It is not reentrant.
type FileLock struct {
	path    string
	timeout time.Duration
}

// NewFileLock creates a FileLock on path. Acquisition gives up after timeout.
func NewFileLock(path string, timeout time.Duration) *FileLock {
	return &FileLock{path: path, timeout: timeout}
}

// Lock acquires the lock, polling with a non-blocking flock until the timeout
// elapses. The returned function releases it.
func (l *FileLock) Lock() (unlock func() error, err error) {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return nil, fmt.Errorf("acquiring file lock: %w", err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w after %s (%s)", ErrLockTimeout, l.timeout, l.path)
		}
		time.Sleep(lockPollInterval)
	}

	return func() error {
		defer f.Close()
		return unix.Flock(int(f.Fd()), unix.LOCK_UN)
	}, nil
}

// WithLock runs fn while holding the lock.
func (l *FileLock) WithLock(fn func() error) error {
	unlock, err := l.Lock()
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}
