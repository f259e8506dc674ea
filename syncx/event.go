package syncx

import (
	"context"
	"sync"
	"time"
)

// Event is a level-triggered broadcast flag. While set, every current and
// future waiter proceeds immediately; Clear arms it again. This distinguishes
// it from a one-shot notification, which only releases waiters present at
// signal time.
//
// The channel-based signaling follows the usual Go idiom: a channel is closed
// on Set and replaced with a fresh one on Clear.
type Event struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewEvent creates a cleared Event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set transitions the event to set and releases all waiters. Idempotent.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

// Clear transitions the event back to clear. Idempotent.
func (e *Event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

// IsSet reports whether the event is set.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Done returns a channel that is closed while the event is set, for use in
// select statements. After a Clear, Done must be called again to observe the
// next Set.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}

// Wait blocks until the event is set. It returns conduit.ErrTimedOut when a
// ctx deadline expires and ctx.Err() on cancellation.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	if e.set {
		e.mu.Unlock()
		return nil
	}
	ch := e.ch
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return waitErr(ctx)
	}
}

// WaitTimeout blocks up to d and reports whether the event was observed set.
// A false return is a timeout, not a failure; the caller decides what to do.
func (e *Event) WaitTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return e.Wait(ctx) == nil
}
