package syncx

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/conduitworks/conduit"
)

// Reentrant is a mutual-exclusion lock that the holder may re-acquire.
// Ownership is carried by the *Hold returned from Acquire rather than by
// goroutine identity, which Go does not expose; nested critical sections
// re-enter through the Hold and every Release must match an acquisition.
// The lock fully frees only when the hold depth reaches zero.
type Reentrant struct {
	inner Mutex

	mu   sync.Mutex
	hold *Hold
}

// Hold represents ownership of a Reentrant lock at some depth.
type Hold struct {
	r     *Reentrant
	depth int
}

// NewReentrant creates an unlocked Reentrant lock.
func NewReentrant() *Reentrant {
	r := &Reentrant{}
	r.inner.waiters = queue.New()
	return r
}

// Acquire blocks until the lock is free and returns a Hold at depth one.
func (r *Reentrant) Acquire(ctx context.Context) (*Hold, error) {
	if err := r.inner.Acquire(ctx); err != nil {
		return nil, err
	}
	h := &Hold{r: r, depth: 1}
	r.mu.Lock()
	r.hold = h
	r.mu.Unlock()
	return h, nil
}

// TryAcquire takes the lock without blocking, failing with
// conduit.ErrWouldBlock when it is held.
func (r *Reentrant) TryAcquire() (*Hold, error) {
	if err := r.inner.TryAcquire(); err != nil {
		return nil, err
	}
	h := &Hold{r: r, depth: 1}
	r.mu.Lock()
	r.hold = h
	r.mu.Unlock()
	return h, nil
}

// Acquire re-enters the lock through an existing hold, incrementing its
// depth. It never blocks; a stale or fully released hold fails with
// conduit.ErrNotOwner.
func (h *Hold) Acquire() error {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	if h.r.hold != h || h.depth == 0 {
		return conduit.ErrNotOwner
	}
	h.depth++
	return nil
}

// Release undoes one acquisition. When the depth reaches zero the lock frees
// and the next queued acquirer takes it. Releasing a stale or over-released
// hold fails with conduit.ErrNotOwner.
func (h *Hold) Release() error {
	h.r.mu.Lock()
	if h.r.hold != h || h.depth == 0 {
		h.r.mu.Unlock()
		return conduit.ErrNotOwner
	}
	h.depth--
	last := h.depth == 0
	if last {
		h.r.hold = nil
	}
	h.r.mu.Unlock()
	if last {
		return h.r.inner.Release()
	}
	return nil
}

// Depth returns the current acquisition depth of the hold.
func (h *Hold) Depth() int {
	h.r.mu.Lock()
	defer h.r.mu.Unlock()
	return h.depth
}
