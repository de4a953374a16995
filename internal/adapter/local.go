package adapter

import (
	"context"
	"sync"
)

// localToken wraps the result of a synchronous Create call that already
// ran to completion by the time Submit returns.
type localToken struct {
	mu        sync.Mutex
	cancelled bool
	poll      Poll
}

// LocalAdapter runs step.Create synchronously on the calling goroutine
// inside Submit. Poll on the returned Token resolves immediately with
// the result captured at Submit time; it never blocks.
type LocalAdapter struct{}

// NewLocalAdapter constructs the default, in-process Adapter.
func NewLocalAdapter() *LocalAdapter { return &LocalAdapter{} }

// Backend implements Adapter.
func (*LocalAdapter) Backend() string { return "local" }

// Submit runs create(dir) synchronously and captures its outcome.
func (*LocalAdapter) Submit(ctx context.Context, create func(dir string) (any, error), dir string) (Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok := &localToken{}
	value, err := create(dir)
	tok.mu.Lock()
	if err != nil {
		tok.poll = Poll{Status: StatusFailed, Err: err}
	} else {
		tok.poll = Poll{Status: StatusSuccess, Result: Result{Value: value}}
	}
	tok.mu.Unlock()

	return tok, nil
}

// Poll implements Adapter; it always returns the outcome captured at
// Submit time, or StatusCancelled if Cancel was called first.
func (*LocalAdapter) Poll(ctx context.Context, t Token) (Poll, error) {
	tok, ok := t.(*localToken)
	if !ok {
		return Poll{}, errInvalidToken
	}
	tok.mu.Lock()
	defer tok.mu.Unlock()
	if tok.cancelled {
		return Poll{Status: StatusCancelled}, nil
	}
	return tok.poll, nil
}

// Cancel marks the token cancelled for future Poll calls. Since Submit
// already ran Create to completion synchronously, this cannot interrupt
// in-flight work — it only affects how a subsequent Poll reports status.
func (*LocalAdapter) Cancel(ctx context.Context, t Token) error {
	tok, ok := t.(*localToken)
	if !ok {
		return errInvalidToken
	}
	tok.mu.Lock()
	tok.cancelled = true
	tok.mu.Unlock()
	return nil
}
