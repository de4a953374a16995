// Package adapter defines the pluggable compute backend the Runner
// submits attempts to. LocalAdapter, the only concrete implementation
// furu ships, runs a step's Create synchronously on the calling
// goroutine; a remote adapter (job scheduler, queue-backed worker pool)
// is an external collaborator behind the same interface and out of
// scope here.
package adapter

import "context"

// Status is the outcome of a poll.
type Status int

const (
	StatusRunning Status = iota
	StatusSuccess
	StatusFailed
	StatusCancelled
)

// Token identifies a submitted attempt to a specific Adapter.
type Token interface{}

// Result carries a successful Create's return value.
type Result struct {
	Value any
}

// Poll is the outcome of one Poll call: exactly one of Result or Err is
// meaningful, gated by Status.
type Poll struct {
	Status Status
	Result Result
	Err    error
}

// Adapter submits a step for execution and reports on its progress.
// Poll must be idempotent: calling it again after a terminal status has
// already been observed returns the same terminal status.
type Adapter interface {
	// Submit begins execution of step in dir and returns a Token the
	// Runner polls. Backend returns this adapter's identifier, recorded
	// into attempt.backend.
	Submit(ctx context.Context, create func(dir string) (any, error), dir string) (Token, error)
	// Poll reports the current status of a submitted Token.
	Poll(ctx context.Context, tok Token) (Poll, error)
	// Cancel best-effort cancels a submitted Token. A subsequent Poll
	// should report StatusCancelled.
	Cancel(ctx context.Context, tok Token) error
	// Backend is this adapter's identifier, recorded into attempt.backend.
	Backend() string
}
