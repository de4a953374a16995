// Package heartbeat runs the cooperative lease-refresh goroutine bound
// to a held lock handle. It is the Runner's only writer that races
// against the Runner's own compute-transition writes for the same
// directory; both go through the same StateStore, and single-writer
// discipline is maintained by never running concurrently with a
// Runner-issued Update for the same directory's attempt (the Runner
// stops the Heartbeat before it performs its own terminal write).
package heartbeat

import (
	"context"
	"fmt"
	"time"

	"github.com/mrz1836/furu/internal/lock"
	"github.com/mrz1836/furu/internal/statestore"
)

// Heartbeat refreshes an attempt's heartbeat_at/lease_expires_at fields
// at a fixed interval until stopped or until a write fails.
type Heartbeat struct {
	store      *statestore.Store
	dir        string
	attemptID  string
	interval   time.Duration
	lease      time.Duration
	clock      func() time.Time
	lockHandle *lock.Handle

	errCh chan error
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Heartbeat at construction.
type Option func(*Heartbeat)

// WithLock has the Heartbeat also refresh the held lock file's own lease
// record (lock.RefreshLease) alongside state.json on every tick, so a
// HolderInfo peek sees the same lease math a follower derives from
// state.json. A nil handle leaves the Heartbeat writing only state.json.
func WithLock(h *lock.Handle) Option {
	return func(hb *Heartbeat) { hb.lockHandle = h }
}

// Interval returns the default heartbeat cadence for a given lease
// duration (spec.md §4.4: max(1, lease_duration/3)).
func Interval(lease time.Duration) time.Duration {
	third := lease / 3
	if third < time.Second {
		return time.Second
	}
	return third
}

// New constructs a Heartbeat for dir's current attempt. It does not
// start until Run is called.
func New(store *statestore.Store, dir, attemptID string, lease time.Duration, opts ...Option) *Heartbeat {
	hb := &Heartbeat{
		store:     store,
		dir:       dir,
		attemptID: attemptID,
		interval:  Interval(lease),
		lease:     lease,
		clock:     time.Now,
		errCh:     make(chan error, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(hb)
	}
	return hb
}

// Run blocks, refreshing the lease on each tick, until ctx is canceled,
// Stop is called, or a refresh write fails. It is intended to be run
// under an errgroup alongside the Adapter poll loop so either failure
// cancels the other.
func (h *Heartbeat) Run(ctx context.Context) error {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stop:
			return nil
		case <-ticker.C:
			if err := h.refresh(); err != nil {
				select {
				case h.errCh <- err:
				default:
				}
				return err
			}
		}
	}
}

// Stop signals the Heartbeat to exit and blocks until it has.
func (h *Heartbeat) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// Errors returns a channel that receives at most one error if a refresh
// write fails; the Runner selects on it to abort the compute attempt.
func (h *Heartbeat) Errors() <-chan error { return h.errCh }

func (h *Heartbeat) refresh() error {
	now := h.clock().UTC()
	leaseExpiresAt := now.Add(h.lease)
	_, err := h.store.Update(h.dir, func(st statestore.State) (statestore.State, error) {
		if st.Attempt == nil || st.Attempt.ID != h.attemptID {
			return st, fmt.Errorf("heartbeat: attempt %s no longer current in %s", h.attemptID, h.dir)
		}
		st.Attempt.HeartbeatAt = now
		st.Attempt.LeaseExpiresAt = leaseExpiresAt
		return st, nil
	})
	if err != nil {
		return err
	}
	if h.lockHandle != nil {
		if err := lock.RefreshLease(h.lockHandle, leaseExpiresAt); err != nil {
			return fmt.Errorf("heartbeat: refresh lock lease: %w", err)
		}
	}
	return nil
}
