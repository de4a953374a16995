// Package waiter implements the follower-side poll loop: watch a step
// directory's state until it reaches a terminal result or a non-live
// attempt appears, without itself attempting to preempt anything.
package waiter

import (
	"context"
	"time"

	"github.com/mrz1836/furu/internal/applog"
	"github.com/mrz1836/furu/internal/ferrors"
	"github.com/mrz1836/furu/internal/statestore"
)

// Config controls polling cadence and progress logging.
type Config struct {
	PollInterval    time.Duration
	WaitLogEverySec time.Duration
	MaxWait         *time.Duration // nil means no timeout
	StaleTimeout    time.Duration
}

// Waiter polls a Store on behalf of a follower.
type Waiter struct {
	store *statestore.Store
	cfg   Config
	clock func() time.Time
}

// New constructs a Waiter.
func New(store *statestore.Store, cfg Config) *Waiter {
	return &Waiter{store: store, cfg: cfg, clock: time.Now}
}

// Wait blocks until dir's state reaches a terminal result (success or
// failed) or a non-live attempt appears — a stale or absent attempt that
// the Runner should re-classify rather than wait on further. It returns
// ferrors.ErrWaitTimeout if cfg.MaxWait elapses first.
func (w *Waiter) Wait(ctx context.Context, dir string) (statestore.State, error) {
	start := w.clock()
	lastLog := start

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := w.store.Read(dir)
		if err != nil {
			return statestore.State{}, err
		}

		switch st.Result.Status {
		case statestore.ResultSuccess, statestore.ResultFailed:
			return st, nil
		}

		if st.Attempt == nil || st.IsStale(w.clock(), w.cfg.StaleTimeout) || st.Attempt.Status.Terminal() {
			return st, nil
		}

		if w.cfg.MaxWait != nil && w.clock().Sub(start) > *w.cfg.MaxWait {
			return statestore.State{}, ferrors.ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return statestore.State{}, ctx.Err()
		case now := <-ticker.C:
			if w.cfg.WaitLogEverySec > 0 && now.Sub(lastLog) >= w.cfg.WaitLogEverySec {
				applog.From(ctx).Info().
					Str("dir", dir).
					Dur("elapsed", now.Sub(start)).
					Msg("waiting for leader to finish compute")
				lastLog = now
			}
		}
	}
}
