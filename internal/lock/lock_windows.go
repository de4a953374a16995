//go:build windows

// Package lock provides the cross-platform, filesystem-native exclusive
// lock used to enforce at-most-one-concurrent-compute per step directory.
package lock

import "golang.org/x/sys/windows"

// exclusive acquires an exclusive non-blocking lock on the file descriptor.
// Returns an error if the lock cannot be acquired immediately.
func exclusive(fd uintptr) error {
	return windows.LockFileEx(
		windows.Handle(fd),
		windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY,
		0,
		1,
		0,
		&windows.Overlapped{},
	)
}

// unlock releases the lock on the file descriptor.
func unlock(fd uintptr) error {
	return windows.UnlockFileEx(
		windows.Handle(fd),
		0,
		1,
		0,
		&windows.Overlapped{},
	)
}
