package syncx

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/conduitworks/conduit"
)

// mwaiter is a blocked acquirer. Grant and cancellation race only under the
// internal mutex, so exactly one of granted/cancelled is ever set.
type mwaiter struct {
	ready     chan struct{}
	granted   bool
	cancelled bool
}

// Mutex is a mutual-exclusion lock with context-aware acquisition and FIFO
// handoff: when the holder releases, ownership passes to the longest-waiting
// acquirer.
//
// The lock does not track goroutine identity; Release on a free Mutex is
// detected as conduit.ErrNotOwner, but releasing from a goroutine other than
// the acquirer is not. Use Reentrant when ownership must be enforced.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters *queue.Queue // of *mwaiter
	nlive   int          // non-cancelled waiters
}

// NewMutex creates an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{waiters: queue.New()}
}

// Acquire blocks until the lock is free, then takes it. It returns
// conduit.ErrTimedOut when a ctx deadline expires and ctx.Err() on
// cancellation; in both cases the lock is not held.
func (m *Mutex) Acquire(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked && m.nlive == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	w := &mwaiter{ready: make(chan struct{})}
	m.waiters.Add(w)
	m.nlive++
	m.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		if w.granted {
			// The handoff already happened; we own the lock.
			m.mu.Unlock()
			return nil
		}
		w.cancelled = true
		m.nlive--
		if !m.locked {
			// The lock freed up while only cancelled waiters were
			// queued; pass it on so nobody is stranded.
			m.grantNext()
		}
		m.mu.Unlock()
		return waitErr(ctx)
	}
}

// TryAcquire takes the lock if it is free and no acquirer is queued ahead,
// otherwise fails with conduit.ErrWouldBlock.
func (m *Mutex) TryAcquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked || m.nlive > 0 {
		return conduit.ErrWouldBlock
	}
	m.locked = true
	return nil
}

// AcquireTimeout is Acquire bounded by d.
func (m *Mutex) AcquireTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.Acquire(ctx)
}

// Release frees the lock or hands it to the longest-waiting acquirer. It
// returns conduit.ErrNotOwner when the lock is not held.
func (m *Mutex) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		return conduit.ErrNotOwner
	}
	m.grantNext()
	return nil
}

// Locked reports whether the lock is currently held.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// grantNext hands the lock to the first live waiter or marks it free.
// Caller holds m.mu.
func (m *Mutex) grantNext() {
	for m.waiters.Length() > 0 {
		w := m.waiters.Remove().(*mwaiter)
		if w.cancelled {
			continue
		}
		w.granted = true
		m.nlive--
		m.locked = true
		close(w.ready)
		return
	}
	m.locked = false
}

func waitErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return conduit.ErrTimedOut
	}
	return ctx.Err()
}
