package syncx

import (
	"context"
	"sync"
)

// Barrier is a cyclic N-party rendezvous. Each party calls Wait; once all N
// have arrived, every waiter is released simultaneously and the barrier
// resets for the next round. A generation counter guards against a late
// arrival from a previous round being confused with the current one: the
// release channel is captured per generation, so a stale waiter can only be
// released by its own generation's trip.
type Barrier struct {
	parties int

	mu      sync.Mutex
	count   int // live arrivals this round
	next    int // next arrival index; unlike count it never rolls back
	gen     uint64
	release chan struct{}
}

// NewBarrier creates a barrier for the given number of parties. Parties must
// be positive; NewBarrier panics otherwise.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic("syncx: barrier parties must be positive")
	}
	return &Barrier{
		parties: parties,
		release: make(chan struct{}),
	}
}

// Parties returns the number of parties required to trip the barrier.
func (b *Barrier) Parties() int { return b.parties }

// Waiting returns the number of parties currently blocked at the barrier.
func (b *Barrier) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Generation returns the number of completed rounds.
func (b *Barrier) Generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// Wait records the caller's arrival and blocks until all parties have
// arrived. It returns the caller's arrival index, unique within the round; in
// a round without timeouts the indices are 0..Parties()-1 and the highest one
// belongs to the party that tripped the barrier. On ctx expiry the arrival is
// withdrawn, provided the round has not already tripped, and
// conduit.ErrTimedOut (or ctx.Err()) is returned.
func (b *Barrier) Wait(ctx context.Context) (int, error) {
	b.mu.Lock()
	gen := b.gen
	idx := b.next
	b.next++
	b.count++
	if b.count == b.parties {
		// Trip: release the current generation and start the next.
		close(b.release)
		b.release = make(chan struct{})
		b.count = 0
		b.next = 0
		b.gen++
		b.mu.Unlock()
		return idx, nil
	}
	release := b.release
	b.mu.Unlock()

	select {
	case <-release:
		return idx, nil
	case <-ctx.Done():
		b.mu.Lock()
		if b.gen != gen {
			// The round tripped while we were timing out; we were
			// released after all.
			b.mu.Unlock()
			return idx, nil
		}
		b.count--
		b.mu.Unlock()
		return 0, waitErr(ctx)
	}
}
