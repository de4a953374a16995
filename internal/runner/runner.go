// Package runner implements the orchestrator described in spec.md §4.6:
// dependency-first recursion, fingerprinting, the fast success path,
// state classification (absent/incomplete, live follower, stale
// preemptor, terminal failure), the leader compute path (lock, attempt
// bookkeeping, metadata, heartbeat + adapter poll loop, finalize), and
// follower delegation to the Waiter. It is the ~35% "hard part" the rest
// of furu's packages exist to support.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/furu/internal/adapter"
	"github.com/mrz1836/furu/internal/applog"
	"github.com/mrz1836/furu/internal/config"
	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/fingerprint"
	"github.com/mrz1836/furu/internal/gitprobe"
	"github.com/mrz1836/furu/internal/heartbeat"
	"github.com/mrz1836/furu/internal/lock"
	"github.com/mrz1836/furu/internal/metadatastore"
	"github.com/mrz1836/furu/internal/statestore"
	"github.com/mrz1836/furu/internal/step"
	"github.com/mrz1836/furu/internal/waiter"
)

// Runner orchestrates LoadOrCreate for one step graph against a shared
// storage root. A Runner is safe for concurrent use by multiple
// goroutines within one process; at-most-one-concurrent-compute across
// processes is enforced by the filesystem Lock, and within a process by
// the embedded singleflight group.
type Runner struct {
	cfg      config.Config
	store    *statestore.Store
	adapter  adapter.Adapter
	clock    func() time.Time
	repoRoot string

	sf singleflight.Group
}

// Option configures a Runner at construction.
type Option func(*Runner)

// WithAdapter overrides the default LocalAdapter.
func WithAdapter(a adapter.Adapter) Option {
	return func(r *Runner) { r.adapter = a }
}

// WithStore overrides the StateStore New builds from cfg.CacheMetadata.
func WithStore(s *statestore.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithClock overrides time.Now, for deterministic tests.
func WithClock(fn func() time.Time) Option {
	return func(r *Runner) { r.clock = fn }
}

// WithRepoRoot sets the git worktree furu checks for version_controlled
// steps (spec.md §4.6). Defaults to the process's working directory.
func WithRepoRoot(path string) Option {
	return func(r *Runner) { r.repoRoot = path }
}

// New constructs a Runner against cfg. The state store's cache tier is
// sized from cfg.CacheMetadata (config.Config.NewStateStore); a
// malformed value, which config.Load already rejects, falls back to an
// uncached store rather than panicking a caller that built cfg by hand.
func New(cfg config.Config, opts ...Option) *Runner {
	store, err := cfg.NewStateStore()
	if err != nil {
		store = statestore.New()
	}
	r := &Runner{
		cfg:      cfg,
		store:    store,
		adapter:  adapter.NewLocalAdapter(),
		clock:    time.Now,
		repoRoot: ".",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadOrCreate is the single entry point: resolve s's dependencies,
// derive its StepDirectory, and return its cached or freshly computed
// result.
func (r *Runner) LoadOrCreate(ctx context.Context, s step.Step) (any, error) {
	return r.loadOrCreate(ctx, s, nil)
}

func (r *Runner) loadOrCreate(ctx context.Context, s step.Step, ancestors []step.Step) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if containsStep(ancestors, s) {
		return nil, fmt.Errorf("%w: dependency cycle at %s", ferrors.ErrInvalidConfig, s.Namespace())
	}
	// append-only: this local extension is never written back to the
	// caller's slice, so sibling dependencies each see ancestors as of s
	// alone, per the same reasoning as fingerprint.writeStep.
	ancestors = append(ancestors, s)

	if err := r.resolveDependencies(ctx, s, ancestors); err != nil {
		return nil, err
	}

	dir, err := fingerprint.DirOf(r.cfg.RootFor(s.VersionControlled()), s)
	if err != nil {
		return nil, err
	}

	v, err, _ := r.sf.Do(dir, func() (any, error) {
		return r.loadOrCreateDir(ctx, s, dir)
	})
	return v, err
}

// resolveDependencies materializes every Step-valued field (directly, or
// nested inside a sequence/mapping) before the parent is touched, per
// spec.md §4.6 step 1. Dependencies do not extend the parent's lease —
// each recursive call manages its own attempt lifecycle independently.
func (r *Runner) resolveDependencies(ctx context.Context, s step.Step, ancestors []step.Step) error {
	for _, f := range s.Fields() {
		if err := r.resolveValue(ctx, f.Value, ancestors); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) resolveValue(ctx context.Context, v step.Value, ancestors []step.Step) error {
	switch val := v.(type) {
	case step.Step:
		_, err := r.loadOrCreate(ctx, val, ancestors)
		return err
	case []step.Value:
		for _, elem := range val {
			if err := r.resolveValue(ctx, elem, ancestors); err != nil {
				return err
			}
		}
		return nil
	case map[string]step.Value:
		for _, elem := range val {
			if err := r.resolveValue(ctx, elem, ancestors); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// loadOrCreateDir runs the classify-dispatch loop for one already-resolved
// StepDirectory. It is the body singleflight collapses per directory.
func (r *Runner) loadOrCreateDir(ctx context.Context, s step.Step, dir string) (any, error) {
	if err := r.applyForceRecompute(s, dir); err != nil {
		return nil, err
	}

	preemptions := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st, err := r.store.Read(dir)
		if err != nil {
			return nil, err
		}

		if v, done, err := r.tryFastPath(s, dir, st); done {
			return v, err
		}

		switch {
		case st.Attempt == nil || st.Attempt.Status.Terminal():
			// absent/incomplete, no live holder (or the prior attempt
			// already ended without succeeding, e.g. cancelled/preempted):
			// candidate leader, no lock preemption needed.
		case !st.IsStale(r.clock(), r.cfg.StaleAfter):
			// live attempt: follower.
			if _, err := r.waitFor(ctx, dir); err != nil {
				return nil, err
			}
			continue
		default:
			// stale attempt: preemptor.
			preemptions++
			if preemptions > r.cfg.PreemptMax {
				return nil, ferrors.ErrExceededPreemptions
			}
			if err := r.preempt(dir, st); err != nil {
				if errors.Is(err, ferrors.ErrLockContested) {
					continue
				}
				return nil, err
			}
			// fall through to acquire as candidate leader
		}

		if s.VersionControlled() {
			if err := r.checkVersionControlled(ctx); err != nil {
				return nil, err
			}
		}

		handle, err := lock.TryAcquire(dir, r.cfg.LeaseDuration)
		if err != nil {
			if errors.Is(err, ferrors.ErrLockContested) {
				continue
			}
			return nil, err
		}

		return r.runLeader(ctx, s, dir, handle)
	}
}

// tryFastPath implements spec.md §4.6 step 3: a prior success short-
// circuits straight to the user's Load hook, and a prior terminal failure
// short-circuits to ComputeError. An I/O failure from Load is treated as
// a cache miss rather than fatal.
func (r *Runner) tryFastPath(s step.Step, dir string, st statestore.State) (any, bool, error) {
	if st.Result.Status == statestore.ResultFailed {
		return nil, true, r.terminalFailure(dir, st)
	}
	if st.Result.Status != statestore.ResultSuccess {
		return nil, false, nil
	}
	hasMarker, err := statestore.HasSuccessMarker(dir)
	if err != nil {
		return nil, false, nil //nolint:nilerr // treat marker-stat failure as cache miss, not fatal
	}
	if !hasMarker {
		return nil, false, nil
	}
	v, err := s.Load(dir)
	if err != nil {
		return nil, false, nil //nolint:nilerr // I/O failure from Load: cache-miss, fall through per spec.md §4.6 step 3
	}
	return v, true, nil
}

func (r *Runner) terminalFailure(dir string, st statestore.State) error {
	var orig error
	if st.Attempt != nil && st.Attempt.Error != nil {
		orig = errors.New(st.Attempt.Error.Message)
	} else {
		orig = errors.New("prior attempt failed")
	}
	return &ferrors.ComputeError{Dir: dir, Original: orig}
}

func (r *Runner) applyForceRecompute(s step.Step, dir string) error {
	if !s.ForceRecompute() && !r.cfg.ShouldForceRecompute(s.Namespace()) {
		return nil
	}
	st, err := r.store.Read(dir)
	if err != nil {
		return err
	}
	if st.Result.Status != statestore.ResultSuccess && st.Result.Status != statestore.ResultFailed {
		return nil
	}
	if st.Result.Status == statestore.ResultSuccess {
		if err := os.Remove(filepath.Join(dir, ".state", "success")); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove success marker: %v", ferrors.ErrStateIO, err)
		}
	}
	_, err = r.store.Update(dir, func(st statestore.State) (statestore.State, error) {
		st.Result = statestore.Result{Status: statestore.ResultIncomplete}
		st.Attempt = nil
		return st, nil
	})
	return err
}

func (r *Runner) waitFor(ctx context.Context, dir string) (statestore.State, error) {
	w := waiter.New(r.store, waiter.Config{
		PollInterval:    r.cfg.PollInterval,
		WaitLogEverySec: r.cfg.WaitLogEvery,
		StaleTimeout:    r.cfg.StaleAfter,
	})
	return w.Wait(ctx, dir)
}

func (r *Runner) preempt(dir string, st statestore.State) error {
	handle, err := lock.Preempt(dir, r.cfg.LeaseDuration)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(handle) }()

	_, err = r.store.Update(dir, func(cur statestore.State) (statestore.State, error) {
		if cur.Attempt != nil && st.Attempt != nil && cur.Attempt.ID == st.Attempt.ID {
			now := r.clock().UTC()
			cur.Attempt.Status = statestore.AttemptPreempted
			cur.Attempt.EndedAt = &now
		}
		return cur, nil
	})
	return err
}

func (r *Runner) checkVersionControlled(ctx context.Context) error {
	gs, err := gitprobe.Probe(ctx, r.repoRoot)
	if err != nil {
		return err
	}
	if !gs.HasRepo {
		if r.cfg.RequireGit {
			return ferrors.ErrDirtyWorktree
		}
		return nil
	}
	if gs.Dirty && !r.cfg.IgnoreGitDiff {
		return ferrors.ErrDirtyWorktree
	}
	if r.cfg.RequireGitRemote && gs.RemoteURL == "" {
		return ferrors.Wrapf(ferrors.ErrDirtyWorktree, "repository at %s has no configured remote", r.repoRoot)
	}
	return nil
}

// runLeader drives one attempt: attempt bookkeeping, metadata, the
// concurrent heartbeat+poll loop (spec.md §4.6 step 5), and finalize.
func (r *Runner) runLeader(ctx context.Context, s step.Step, dir string, handle *lock.Handle) (result any, err error) {
	defer func() {
		if relErr := lock.Release(handle); relErr != nil && err == nil {
			err = relErr
		}
	}()

	attemptID := uuid.NewString()
	st, err := r.store.Read(dir)
	if err != nil {
		return nil, err
	}
	number := 1
	if st.Attempt != nil {
		number = st.Attempt.Number + 1
	}

	owner := currentOwner()
	now := r.clock().UTC()
	attempt := &statestore.Attempt{
		ID:               attemptID,
		Number:           number,
		Backend:          r.adapter.Backend(),
		Status:           statestore.AttemptQueued,
		StartedAt:        now,
		HeartbeatAt:      now,
		LeaseDurationSec: r.cfg.LeaseDuration.Seconds(),
		LeaseExpiresAt:   now.Add(r.cfg.LeaseDuration),
		Owner:            owner,
	}
	if _, err := r.store.Update(dir, func(cur statestore.State) (statestore.State, error) {
		cur.Result = statestore.Result{Status: statestore.ResultIncomplete}
		cur.Attempt = attempt
		return cur, nil
	}); err != nil {
		return nil, err
	}

	if err := r.writeMetadata(ctx, s, dir); err != nil {
		return nil, err
	}

	fp, err := fingerprint.Hash(s)
	if err != nil {
		return nil, err
	}

	ctx = applog.WithFields(ctx, s.Namespace(), fp, attemptID)
	applog.From(ctx).Info().Str("dir", dir).Int("attempt_number", number).Msg("compute attempt starting")

	if _, err := r.store.Update(dir, func(cur statestore.State) (statestore.State, error) {
		if cur.Attempt != nil && cur.Attempt.ID == attemptID {
			cur.Attempt.Status = statestore.AttemptRunning
		}
		return cur, nil
	}); err != nil {
		return nil, err
	}

	poll, pollErr := r.runAttempt(ctx, s, dir, attemptID, handle)
	return r.finalize(ctx, dir, attemptID, poll, pollErr)
}

func (r *Runner) writeMetadata(ctx context.Context, s step.Step, dir string) error {
	canon, err := fingerprint.Canonical(s)
	if err != nil {
		return err
	}
	fp, err := fingerprint.Hash(s)
	if err != nil {
		return err
	}
	if err := metadatastore.VerifyFingerprint(dir, fp); err != nil {
		return err
	}

	rec := metadatastore.Metadata{
		Fingerprint: fp,
		Namespace:   s.Namespace(),
		Config:      canon,
		StartedAt:   r.clock().UTC(),
	}
	o := currentOwner()
	rec.Owner.PID = o.PID
	rec.Owner.Host = o.Host
	rec.Owner.User = o.User

	if s.VersionControlled() {
		gs, err := gitprobe.Probe(ctx, r.repoRoot)
		if err == nil && gs.HasRepo {
			rec.Git = &metadatastore.GitInfo{Commit: gs.Commit, RemoteURL: gs.RemoteURL, Dirty: gs.Dirty}
		}
	}
	return ferrors.Wrap(metadatastore.WriteOnce(dir, rec), "write metadata sidecar")
}

// runAttempt runs the Heartbeat and Adapter poll loop concurrently under
// one cancellable group (spec.md §4.6 step 5e, §4.4 "single-writer
// discipline": the Heartbeat never writes after the group is stopped, and
// the Runner's own terminal write in finalize happens only after Wait
// returns).
func (r *Runner) runAttempt(ctx context.Context, s step.Step, dir, attemptID string, handle *lock.Handle) (adapter.Poll, error) {
	hb := heartbeat.New(r.store, dir, attemptID, r.cfg.LeaseDuration, heartbeat.WithLock(handle))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hb.Run(gctx) })

	var poll adapter.Poll
	g.Go(func() error {
		defer hb.Stop()

		token, err := r.adapter.Submit(gctx, s.Create, dir)
		if err != nil {
			return err
		}

		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				_ = r.adapter.Cancel(context.Background(), token)
				p, _ := r.adapter.Poll(context.Background(), token)
				poll = p
				return gctx.Err()
			case hbErr := <-hb.Errors():
				_ = r.adapter.Cancel(context.Background(), token)
				return hbErr
			case <-ticker.C:
				p, err := r.adapter.Poll(gctx, token)
				if err != nil {
					return err
				}
				if p.Status != adapter.StatusRunning {
					poll = p
					return nil
				}
			}
		}
	})

	err := g.Wait()
	return poll, err
}

func (r *Runner) finalize(ctx context.Context, dir, attemptID string, poll adapter.Poll, runErr error) (any, error) {
	cancelled := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !cancelled {
		_ = r.markEnded(dir, attemptID, statestore.AttemptFailed, runErr)
		return nil, fmt.Errorf("%w: %v", ferrors.ErrComputeFailed, runErr)
	}
	if cancelled && poll.Status != adapter.StatusCancelled {
		poll.Status = adapter.StatusCancelled
	}

	switch poll.Status {
	case adapter.StatusSuccess:
		if err := r.store.MarkSuccess(dir, attemptID); err != nil {
			return nil, err
		}
		applog.From(ctx).Info().Str("dir", dir).Msg("compute attempt succeeded")
		return poll.Result.Value, nil
	case adapter.StatusFailed:
		_ = r.markEnded(dir, attemptID, statestore.AttemptFailed, poll.Err)
		return nil, &ferrors.ComputeError{Dir: dir, Original: poll.Err}
	case adapter.StatusCancelled:
		terminal := statestore.AttemptCancelled
		if r.cfg.CancelledIsPreempted {
			terminal = statestore.AttemptPreempted
		}
		_ = r.markEnded(dir, attemptID, terminal, nil)
		return nil, ferrors.ErrCanceled
	default:
		_ = r.markEnded(dir, attemptID, statestore.AttemptCrashed, fmt.Errorf("unexpected poll status %d", poll.Status))
		return nil, ferrors.ErrComputeFailed
	}
}

func (r *Runner) markEnded(dir, attemptID string, status statestore.AttemptStatus, cause error) error {
	_, err := r.store.Update(dir, func(st statestore.State) (statestore.State, error) {
		now := r.clock().UTC()
		if st.Attempt != nil && st.Attempt.ID == attemptID {
			st.Attempt.Status = status
			st.Attempt.EndedAt = &now
			if cause != nil {
				st.Attempt.Error = &statestore.AttemptError{Type: fmt.Sprintf("%T", cause), Message: cause.Error()}
			}
		}
		if status == statestore.AttemptFailed {
			st.Result = statestore.Result{Status: statestore.ResultFailed}
		}
		return st, nil
	})
	return err
}

// containsStep reports whether s already appears in ancestors. Mirrors
// fingerprint's own cycle-detection helper: a Step's concrete type often
// stores its Fields() cache directly (a slice), making it non-comparable,
// so stepsEqual treats such steps as never equal rather than panicking on
// a bare == comparison.
func containsStep(ancestors []step.Step, s step.Step) bool {
	for _, a := range ancestors {
		if stepsEqual(a, s) {
			return true
		}
	}
	return false
}

func stepsEqual(a, b step.Step) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Type() != bv.Type() || !av.Comparable() {
		return false
	}
	return a == b
}

func currentOwner() statestore.Owner {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return statestore.Owner{PID: os.Getpid(), Host: host, User: username}
}
