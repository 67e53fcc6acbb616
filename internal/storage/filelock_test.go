package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLock_WithLockRunsFn(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), LockFile), time.Second)
	called := false
	if err := lock.WithLock(func() error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("fn was not called")
	}

	sentinel := errors.New("boom")
	if err := lock.WithLock(func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected fn error, got %v", err)
	}
	// The lock is released after an error.
	if err := lock.WithLock(func() error { return nil }); err != nil {
		t.Errorf("lock not released: %v", err)
	}
}

func TestFileLock_TimesOutWhileHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFile)
	holder := NewFileLock(path, time.Second)
	unlock, err := holder.Lock()
	if err != nil {
		t.Fatal(err)
	}
	defer unlock()

	// flock locks belong to the open file description, so a second open
	// conflicts even within one process.
	waiter := NewFileLock(path, 100*time.Millisecond)
	start := time.Now()
	err = waiter.WithLock(func() error {
		t.Error("fn ran while the lock was held")
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Error("gave up before the timeout")
	}
}

func TestFileLock_SerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFile)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := NewFileLock(path, 5*time.Second)
			err := lock.WithLock(func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("%d holders at once", maxSeen)
	}
}
