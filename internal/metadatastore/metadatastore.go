// Package metadatastore writes and verifies the immutable metadata.json
// sidecar: the provenance record captured once, on a step directory's
// first lock acquisition, and never overwritten.
package metadatastore

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

	fileName = "metadata.json"
)

// GitInfo is the optional git provenance captured at metadata write
// time, populated only when the step declares version_controlled.
type GitInfo struct {
	Commit    string `json:"commit,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
	Dirty     bool   `json:"dirty"`
}

// Metadata is the immutable record written once per step directory.
type Metadata struct {
	Fingerprint string          `json:"fingerprint"`
	Namespace   string          `json:"namespace"`
	Config      json.RawMessage `json:"config"`
	Git         *GitInfo        `json:"git,omitempty"`
	Owner       struct {
		PID  int    `json:"pid"`
		Host string `json:"host"`
		User string `json:"user"`
	} `json:"owner"`
	StartedAt time.Time `json:"started_at"`
}

func path(dir string) string { return filepath.Join(dir, ".state", fileName) }

// WriteOnce writes rec to dir's metadata.json if and only if it does
// not already exist. A concurrent second caller observing the file
// already present is not an error: write-once is enforced by presence,
// not by locking (the Runner only calls this while holding dir's lock,
// so there is at most one writer at a time in practice).
func WriteOnce(dir string, rec Metadata) error {
	target := path(dir)
	if _, err := os.Stat(target); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: stat metadata file: %v", ferrors.ErrStateIO, err)
	}

	if err := os.MkdirAll(filepath.Join(dir, ".state"), dirPerm); err != nil {
		return fmt.Errorf("%w: create state dir: %v", ferrors.ErrStateIO, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", ferrors.ErrStateIO, err)
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, filePerm); err != nil { //#nosec G304 -- path built from validated step directory
		return fmt.Errorf("%w: write temp metadata: %v", ferrors.ErrStateIO, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: rename metadata: %v", ferrors.ErrStateIO, err)
	}
	return nil
}

// Read returns dir's metadata record, or nil if none has been written
// yet.
func Read(dir string) (*Metadata, error) {
	data, err := os.ReadFile(path(dir)) //#nosec G304 -- path built from validated step directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read metadata: %v", ferrors.ErrStateIO, err)
	}
	var rec Metadata
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ferrors.ErrStateCorrupt, err)
	}
	return &rec, nil
}

// VerifyFingerprint checks that dir's stored metadata fingerprint
// matches fp. A mismatch means the canonicalizer produced two different
// fingerprints for what the caller believes is the same step shape — a
// determinism bug to surface loudly, never to silently paper over by
// rewriting metadata.
func VerifyFingerprint(dir string, fp string) error {
	rec, err := Read(dir)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if rec.Fingerprint != fp {
		return fmt.Errorf("%w: stored %s, computed %s", ferrors.ErrFingerprintDrift, rec.Fingerprint, fp)
	}
	return nil
}
