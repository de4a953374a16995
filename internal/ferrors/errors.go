// Package ferrors provides centralized error handling for furu.
//
// This package defines sentinel errors used for programmatic error categorization
// throughout the application. All error kinds can be checked using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal package.
// Only standard library imports are allowed.
package ferrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for error categorization (spec error table).
// These allow callers to check error kinds with errors.Is().
var (
	// ErrInvalidConfig indicates that a step's configuration could not be
	// canonicalized: a cycle was detected, or a field held an unsupported
	// value kind (function, opaque handle, ...).
	ErrInvalidConfig = errors.New("invalid step configuration")

	// ErrStateCorrupt indicates state.json failed to parse or carried an
	// unexpected schema version.
	ErrStateCorrupt = errors.New("state file corrupt")

	// ErrStateIO indicates a transient filesystem error while reading or
	// writing state.json.
	ErrStateIO = errors.New("state file io error")

	// ErrLockContested indicates try_acquire failed because another
	// process holds a live lock. Never surfaced to the top-level caller;
	// the classifier re-evaluates and falls into the follower path.
	ErrLockContested = errors.New("lock contested")

	// ErrLeaseStale indicates a lock holder's lease has expired or its
	// heartbeat has gone silent past stale_timeout.
	ErrLeaseStale = errors.New("lease stale")

	// ErrExceededPreemptions indicates a step directory's preemption
	// budget (max_requeues) has been exhausted.
	ErrExceededPreemptions = errors.New("exceeded preemption budget")

	// ErrComputeFailed indicates the user's Create hook raised an error.
	// Wraps the original error; see ComputeError.
	ErrComputeFailed = errors.New("compute failed")

	// ErrWaitTimeout indicates a follower exceeded max_wait_time_sec.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrDirtyWorktree indicates a version_controlled step found an
	// unclean git worktree with ignore_git_diff unset.
	ErrDirtyWorktree = errors.New("worktree has uncommitted changes")

	// ErrFingerprintDrift indicates canonicalization is non-deterministic:
	// a metadata sidecar's stored fingerprint no longer matches the
	// current step's fingerprint.
	ErrFingerprintDrift = errors.New("fingerprint drift detected")

	// ErrMigrationRequired indicates state.json carries an older
	// schema_version with no in-place migration path.
	ErrMigrationRequired = errors.New("schema migration required")

	// ErrAlreadyExists signals an attempt to create a step directory that is
	// already materialized.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound indicates a requested step directory, attempt, or
	// artifact does not exist on disk.
	ErrNotFound = errors.New("not found")

	// ErrEmptyValue indicates a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrPathTraversal indicates an artifact filename attempted to escape
	// its step directory.
	ErrPathTraversal = errors.New("path traversal rejected")

	// ErrInvalidDuration indicates a duration string (e.g. FURU_CACHE_METADATA)
	// could not be parsed.
	ErrInvalidDuration = errors.New("invalid duration format")

	// ErrCanceled indicates the caller's context was canceled or its
	// deadline exceeded while furu held no lock that needs cleanup beyond
	// the caller's own responsibility.
	ErrCanceled = errors.New("operation canceled")
)

// ComputeError wraps a failure from a step's Create hook together with the
// StepDirectory path, mirroring the Python FuruComputeError: it preserves
// the original error's message (and, if available, its stack trace) in the
// wrapping error's own message.
type ComputeError struct {
	Dir      string
	Original error
}

// Error implements the error interface, appending the original error and,
// when available, its stack trace, followed by the state file path.
func (e *ComputeError) Error() string {
	msg := fmt.Sprintf("compute failed in %s", e.Dir)
	if e.Original != nil {
		msg += fmt.Sprintf("\n\noriginal error: %v", e.Original)
		if st, ok := e.Original.(interface{ StackTrace() string }); ok {
			msg += fmt.Sprintf("\n\ntraceback:\n%s", st.StackTrace())
		}
	}
	msg += fmt.Sprintf("\n\nstate file: %s/.state/state.json", e.Dir)
	return msg
}

// Unwrap allows errors.Is(err, ErrComputeFailed) and errors.Is(err, original).
func (e *ComputeError) Unwrap() []error {
	return []error{ErrComputeFailed, e.Original}
}

// MigrationRequiredError carries the offending state file path, mirroring
// the Python FuruMigrationRequired exception's __str__ behavior.
type MigrationRequiredError struct {
	Dir            string
	CurrentVersion int
	WantVersion    int
}

// Error implements the error interface.
func (e *MigrationRequiredError) Error() string {
	return fmt.Sprintf(
		"state schema_version %d is older than %d and has no in-place migration\n\nstate file: %s/.state/state.json",
		e.CurrentVersion, e.WantVersion, e.Dir,
	)
}

// Unwrap allows errors.Is(err, ErrMigrationRequired).
func (e *MigrationRequiredError) Unwrap() error {
	return ErrMigrationRequired
}
