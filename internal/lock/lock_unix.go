//go:build unix

// Package lock provides the cross-platform, filesystem-native exclusive
// lock used to enforce at-most-one-concurrent-compute per step directory.
package lock

import "syscall"

// exclusive acquires an exclusive non-blocking lock on the file descriptor.
// Returns an error if the lock cannot be acquired immediately.
func exclusive(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX|syscall.LOCK_NB)
}

// unlock releases the lock on the file descriptor.
func unlock(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
