//go:build !windows

package app

import (
	"errors"
	"syscall"
)

// processExists reports whether pid names a live process. Signal 0 performs
// only the existence and permission checks; EPERM still proves the process is
// there, it just belongs to another user.
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	switch err := syscall.Kill(pid, 0); {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		return true
	default:
		return false
	}
}
