package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrz1836/furu/internal/ferrors"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	stateFileName   = "state.json"
	successFileName = "success"
)

func stateDir(dir string) string  { return filepath.Join(dir, ".state") }
func statePath(dir string) string { return filepath.Join(stateDir(dir), stateFileName) }
func successPath(dir string) string {
	return filepath.Join(stateDir(dir), successFileName)
}

// Store reads and writes state.json for step directories, optionally
// read-through cached for a bounded TTL.
type Store struct {
	cache Cache
}

// Option configures a Store.
type Option func(*Store)

// WithCache installs a read-through cache. The zero Store has no cache
// (every Read hits disk), equivalent to TTL "never".
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// New constructs a Store. Without WithCache, reads always go to disk.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns dir's current state, or Default() if state.json does not
// yet exist. A cache hit, if a Cache is installed, bypasses disk entirely.
func (s *Store) Read(dir string) (State, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(dir); ok {
			return st, nil
		}
	}

	data, err := os.ReadFile(statePath(dir)) //#nosec G304 -- path built from validated step directory
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return State{}, fmt.Errorf("%w: %v", ferrors.ErrStateIO, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("%w: %v", ferrors.ErrStateCorrupt, err)
	}
	if st.SchemaVersion < SchemaVersion {
		return State{}, &ferrors.MigrationRequiredError{
			Dir:            dir,
			CurrentVersion: st.SchemaVersion,
			WantVersion:    SchemaVersion,
		}
	}

	if s.cache != nil {
		s.cache.Set(dir, st)
	}
	return st, nil
}

// WriteAtomic serializes s to a temp file in dir's .state directory,
// fsyncs it, and renames it over state.json. The rename is the commit
// point (invariant 4: updated_at is non-decreasing across any successful
// atomic write).
func (s *Store) WriteAtomic(dir string, st State) error {
	if err := os.MkdirAll(stateDir(dir), dirPerm); err != nil {
		return fmt.Errorf("%w: create state dir: %v", ferrors.ErrStateIO, err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal state: %v", ferrors.ErrStateIO, err)
	}

	target := statePath(dir)
	tmp := target + ".tmp"
	if err := writeFileSync(tmp, data); err != nil {
		return fmt.Errorf("%w: %v", ferrors.ErrStateIO, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename state file: %v", ferrors.ErrStateIO, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(dir)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm) //#nosec G304 -- path built from validated step directory
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close temp state file: %w", err)
	}
	return nil
}

// Update reads dir's state, applies fn, and writes the result back
// atomically. The caller must already hold the directory's compute lock;
// Update itself performs no locking or retry.
func (s *Store) Update(dir string, fn func(State) (State, error)) (State, error) {
	cur, err := s.Read(dir)
	if err != nil {
		return State{}, err
	}
	next, err := fn(cur)
	if err != nil {
		return State{}, err
	}
	next.UpdatedAt = time.Now().UTC()
	if err := s.WriteAtomic(dir, next); err != nil {
		return State{}, err
	}
	return next, nil
}

// MarkSuccess transitions dir's state to a successful result for the
// given attempt and writes the .state/success marker only after
// state.json is durably renamed (invariant 1: result.status == success
// iff .state/success exists on disk).
func (s *Store) MarkSuccess(dir string, attemptID string) error {
	_, err := s.Update(dir, func(st State) (State, error) {
		now := time.Now().UTC()
		st.Result = Result{Status: ResultSuccess, CreatedAt: &now}
		if st.Attempt != nil && st.Attempt.ID == attemptID {
			st.Attempt.Status = AttemptSuccess
			st.Attempt.EndedAt = &now
		}
		return st, nil
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(stateDir(dir), dirPerm); err != nil {
		return fmt.Errorf("%w: create state dir: %v", ferrors.ErrStateIO, err)
	}
	if err := writeFileSync(successPath(dir), []byte{}); err != nil {
		return fmt.Errorf("%w: write success marker: %v", ferrors.ErrStateIO, err)
	}
	return nil
}

// HasSuccessMarker reports whether .state/success exists on disk.
func HasSuccessMarker(dir string) (bool, error) {
	_, err := os.Stat(successPath(dir))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: stat success marker: %v", ferrors.ErrStateIO, err)
}
