package syncx

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// cwaiter is a parked Cond waiter. signalled and cancelled are mutually
// exclusive and only flip under the Cond's internal mutex.
type cwaiter struct {
	ch        chan struct{}
	signalled bool
	cancelled bool
}

// Cond is a condition variable bound to a Mutex. Wait atomically releases the
// lock and suspends, then reacquires the lock before returning; the waiter is
// registered before the lock is released, so a Signal issued after the
// predicate became true can never be missed.
//
// Spurious wakeups are permitted: callers must re-check their predicate in a
// loop around every Wait.
type Cond struct {
	// L is the lock the predicate is guarded by. Callers must hold it when
	// calling Wait and should hold it when changing the predicate.
	L *Mutex

	mu      sync.Mutex
	waiters *queue.Queue // of *cwaiter
}

// NewCond creates a Cond bound to l.
func NewCond(l *Mutex) *Cond {
	return &Cond{L: l, waiters: queue.New()}
}

// Wait releases c.L, suspends until Signal, Broadcast, or ctx expiry, then
// reacquires c.L before returning. On return the caller holds the lock again
// regardless of the outcome: a nil error means the waiter was woken,
// conduit.ErrTimedOut that the ctx deadline passed first. Wait fails with
// conduit.ErrNotOwner, without suspending, when the caller does not hold c.L.
func (c *Cond) Wait(ctx context.Context) error {
	w := &cwaiter{ch: make(chan struct{})}
	c.mu.Lock()
	c.waiters.Add(w)
	c.mu.Unlock()

	if err := c.L.Release(); err != nil {
		c.mu.Lock()
		w.cancelled = true
		c.mu.Unlock()
		return err
	}

	var werr error
	select {
	case <-w.ch:
	case <-ctx.Done():
		c.mu.Lock()
		if !w.signalled {
			w.cancelled = true
			werr = waitErr(ctx)
		}
		c.mu.Unlock()
	}

	// The lock must be held on return even when the wait timed out, so the
	// reacquisition itself is not cancellable.
	if err := c.L.Acquire(context.Background()); err != nil {
		return err
	}
	return werr
}

// WaitFor repeatedly waits until pred() is true or ctx ends. The caller must
// hold c.L; pred is evaluated with the lock held.
func (c *Cond) WaitFor(ctx context.Context, pred func() bool) error {
	for !pred() {
		if err := c.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Signal wakes the longest-waiting waiter, if any.
func (c *Cond) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*cwaiter)
		if w.cancelled {
			continue
		}
		w.signalled = true
		close(w.ch)
		return
	}
}

// Broadcast wakes all current waiters.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.waiters.Length() > 0 {
		w := c.waiters.Remove().(*cwaiter)
		if w.cancelled {
			continue
		}
		w.signalled = true
		close(w.ch)
	}
}
