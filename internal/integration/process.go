package integration

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ProcessChecker answers liveness queries with signal 0, which performs the
// kill permission checks without delivering a signal.
type ProcessChecker struct{}

// NewProcessChecker returns a ProcessChecker for the local host.
func NewProcessChecker() *ProcessChecker {
	return &ProcessChecker{}
}

// IsProcessAlive reports whether pid names a running process. EPERM means the
// process exists but belongs to another user, so it counts as alive.
func (ProcessChecker) IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
