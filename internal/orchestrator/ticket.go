package orchestrator

import (
	"context"
	"sync"
)

// Ticket tracks one admitted request.
type Ticket struct {
	Request
	Seq uint64

	cancel context.CancelCauseFunc
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error
}

func newTicket(req Request, seq uint64, cancel context.CancelCauseFunc) *Ticket {
	return &Ticket{Request: req, Seq: seq, cancel: cancel, done: make(chan struct{})}
}

// Done is closed once the request has finished.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Outcome returns the result; it is OutcomeNone until Done is closed.
func (t *Ticket) Outcome() (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, t.err
}

// Wait blocks until the request finishes or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.Outcome()
	case <-ctx.Done():
		return OutcomeNone, ctx.Err()
	}
}

// Cancel requests cooperative cancellation.
func (t *Ticket) Cancel() {
	t.cancel(context.Canceled)
}

func (t *Ticket) finish(outcome Outcome, err error) {
	t.mu.Lock()
	t.outcome, t.err = outcome, err
	t.mu.Unlock()
	t.cancel(nil)
	close(t.done)
}
