// Package gitprobe captures the git provenance furu records for
// version_controlled steps: commit SHA, remote URL, and worktree
// cleanliness. It shells out to the git CLI the same way the teacher's
// internal/git package does, but only for the handful of read-only
// queries furu's metadata sidecar and version-control gate need.
package gitprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNotGitRepo indicates path is not inside a git worktree.
var ErrNotGitRepo = errors.New("gitprobe: not a git repository")

// State is the provenance snapshot captured for one directory.
type State struct {
	Commit    string
	RemoteURL string
	Dirty     bool
	HasRepo   bool
}

// Probe inspects the git repository containing dir and returns its
// current state. HasRepo is false (with a zero State otherwise) when dir
// is not inside a git worktree; that is not itself an error, since
// callers decide what "no repo" means under RequireGit.
func Probe(ctx context.Context, dir string) (State, error) {
	if _, err := run(ctx, dir, "rev-parse", "--show-toplevel"); err != nil {
		if errors.Is(err, ErrNotGitRepo) {
			return State{}, nil
		}
		return State{}, err
	}

	var st State
	st.HasRepo = true

	commit, err := run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return State{}, err
	}
	st.Commit = commit

	if remote, err := run(ctx, dir, "remote", "get-url", "origin"); err == nil {
		st.RemoteURL = remote
	}

	status, err := run(ctx, dir, "status", "--porcelain", "-uall")
	if err != nil {
		return State{}, err
	}
	st.Dirty = status != ""

	return st, nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...) //#nosec G204 -- args are built internally, never user input
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if strings.Contains(stderr.String(), "not a git repository") {
			return "", ErrNotGitRepo
		}
		return "", fmt.Errorf("git %s: %s: %w", args[0], strings.TrimSpace(stderr.String()), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
