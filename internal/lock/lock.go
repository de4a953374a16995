package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/mrz1836/furu/internal/ferrors"
)

// FileName is the name of the lock file inside a step directory's
// internal .state directory.
const FileName = "lock"

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// Owner describes the process that holds (or last held) a lock, written
// into the lock file itself so that HolderInfo can peek at it without
// acquiring the lock.
type Owner struct {
	PID            int       `json:"pid"`
	Host           string    `json:"host"`
	User           string    `json:"user"`
	AcquiredAt     time.Time `json:"acquired_at"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
}

// Handle represents a held exclusive lock on a step directory.
type Handle struct {
	dir  string
	file *os.File
}

// Dir returns the step directory this handle locks.
func (h *Handle) Dir() string { return h.dir }

func lockPath(dir string) string {
	return filepath.Join(dir, ".state", FileName)
}

// TryAcquire attempts a non-blocking exclusive lock on dir's lock file.
// Returns ferrors.ErrLockContested if another process holds it.
func TryAcquire(dir string, leaseDuration time.Duration) (*Handle, error) {
	stateDir := filepath.Join(dir, ".state")
	if err := os.MkdirAll(stateDir, dirPerm); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	f, err := os.OpenFile(lockPath(dir), os.O_CREATE|os.O_RDWR, filePerm) //#nosec G304 -- path constructed from validated step directory
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := exclusive(f.Fd()); err != nil {
		_ = f.Close()
		return nil, ferrors.ErrLockContested
	}

	owner, err := currentOwner(leaseDuration)
	if err != nil {
		_ = unlock(f.Fd())
		_ = f.Close()
		return nil, err
	}
	if err := writeOwner(f, owner); err != nil {
		_ = unlock(f.Fd())
		_ = f.Close()
		return nil, err
	}

	return &Handle{dir: dir, file: f}, nil
}

// Release releases the lock. It is idempotent: releasing a nil handle, or
// one already released, is a no-op.
func Release(h *Handle) error {
	if h == nil || h.file == nil {
		return nil
	}
	err := unlock(h.file.Fd())
	closeErr := h.file.Close()
	h.file = nil
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}
	return nil
}

// RefreshLease rewrites the owner record in a held lock's file with a new
// lease expiry. Called by the heartbeat while the Handle is held.
func RefreshLease(h *Handle, leaseExpiresAt time.Time) error {
	if h == nil || h.file == nil {
		return fmt.Errorf("refresh lease: %w", ferrors.ErrNotFound)
	}
	owner, err := currentOwner(0)
	if err != nil {
		return err
	}
	owner.LeaseExpiresAt = leaseExpiresAt
	return writeOwner(h.file, owner)
}

// HolderInfo peeks at the lock file's owner record without acquiring the
// lock. Returns nil, nil if the lock file does not exist.
func HolderInfo(dir string) (*Owner, error) {
	data, err := os.ReadFile(lockPath(dir)) //#nosec G304 -- path constructed from validated step directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		// A torn or legacy lock file is not fatal to the caller: treat it
		// as "no readable owner" so classification falls back to lease math
		// derived from state.json instead.
		return nil, nil //nolint:nilerr // best-effort peek, see comment above
	}
	return &owner, nil
}

// Preempt breaks a stale lock by deleting and recreating the lock file,
// then attempting acquisition. It is the caller's responsibility (Runner)
// to have already confirmed the prior attempt is stale via state.json
// before calling Preempt, and to update state.json afterward.
func Preempt(dir string, leaseDuration time.Duration) (*Handle, error) {
	if err := os.Remove(lockPath(dir)); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}
	return TryAcquire(dir, leaseDuration)
}

func writeOwner(f *os.File, owner Owner) error {
	data, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("marshal lock owner: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write lock owner: %w", err)
	}
	return f.Sync()
}

func currentOwner(leaseDuration time.Duration) (Owner, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	now := time.Now().UTC()
	return Owner{
		PID:            os.Getpid(),
		Host:           host,
		User:           username,
		AcquiredAt:     now,
		LeaseExpiresAt: now.Add(leaseDuration),
	}, nil
}
