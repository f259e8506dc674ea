package channel

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/conduitworks/conduit"
)

// putWaiter is a blocked producer. The value travels with the waiter so the
// goroutine that frees a slot can commit the put on the producer's behalf.
type putWaiter[T any] struct {
	val       T
	done      chan error
	granted   bool
	cancelled bool
}

// getWaiter is a blocked consumer.
type getWaiter[T any] struct {
	done      chan getResult[T]
	granted   bool
	cancelled bool
}

type getResult[T any] struct {
	val T
	err error
}

// Bounded is a fixed-capacity FIFO channel. Put blocks while full, Get blocks
// while empty. Messages are delivered in strict enqueue order; blocked putters
// and getters are woken in FIFO order.
//
// All methods are safe for concurrent use. The zero value is not usable; use
// New.
type Bounded[T any] struct {
	capacity int

	mu      sync.Mutex
	buf     *queue.Queue // of T
	putters *queue.Queue // of *putWaiter[T]
	getters *queue.Queue // of *getWaiter[T]
	pwait   int          // live (non-cancelled) entries in putters
	gwait   int          // live entries in getters
	closed  bool
}

// New creates a bounded channel with the given capacity. Capacity must be
// positive; New panics otherwise.
func New[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		panic("channel: capacity must be positive")
	}
	return &Bounded[T]{
		capacity: capacity,
		buf:      queue.New(),
		putters:  queue.New(),
		getters:  queue.New(),
	}
}

// Cap returns the channel capacity.
func (c *Bounded[T]) Cap() int { return c.capacity }

// Len returns the number of buffered messages.
func (c *Bounded[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Length()
}

// Put appends v, blocking while the channel is full. It returns
// conduit.ErrClosed if the channel is closed, conduit.ErrTimedOut if a ctx
// deadline expires, or ctx.Err() if ctx is cancelled. A nil return means the
// message was enqueued; once enqueued it is never dropped.
func (c *Bounded[T]) Put(ctx context.Context, v T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return conduit.ErrClosed
	}
	if c.buf.Length() < c.capacity && c.pwait == 0 {
		c.buf.Add(v)
		c.rebalance()
		c.mu.Unlock()
		return nil
	}
	w := &putWaiter[T]{val: v, done: make(chan error, 1)}
	c.putters.Add(w)
	c.pwait++
	c.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		c.mu.Lock()
		if w.granted {
			// The put was committed while we were timing out.
			c.mu.Unlock()
			return <-w.done
		}
		w.cancelled = true
		c.pwait--
		c.mu.Unlock()
		return waitErr(ctx)
	}
}

// Get removes and returns the oldest message, blocking while the channel is
// empty. On a closed channel it drains the remaining buffer and then returns
// conduit.ErrClosed.
func (c *Bounded[T]) Get(ctx context.Context) (T, error) {
	var zero T
	c.mu.Lock()
	if c.buf.Length() > 0 && c.gwait == 0 {
		v := c.buf.Remove().(T)
		c.rebalance()
		c.mu.Unlock()
		return v, nil
	}
	if c.closed {
		c.mu.Unlock()
		return zero, conduit.ErrClosed
	}
	w := &getWaiter[T]{done: make(chan getResult[T], 1)}
	c.getters.Add(w)
	c.gwait++
	c.mu.Unlock()

	select {
	case res := <-w.done:
		return res.val, res.err
	case <-ctx.Done():
		c.mu.Lock()
		if w.granted {
			c.mu.Unlock()
			res := <-w.done
			return res.val, res.err
		}
		w.cancelled = true
		c.gwait--
		c.mu.Unlock()
		return zero, waitErr(ctx)
	}
}

// TryPut appends v without blocking. It returns conduit.ErrWouldBlock if the
// channel is full or producers are already queued ahead.
func (c *Bounded[T]) TryPut(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return conduit.ErrClosed
	}
	if c.buf.Length() >= c.capacity || c.pwait > 0 {
		return conduit.ErrWouldBlock
	}
	c.buf.Add(v)
	c.rebalance()
	return nil
}

// TryGet removes the oldest message without blocking. It returns
// conduit.ErrWouldBlock if the channel is empty or consumers are queued ahead.
func (c *Bounded[T]) TryGet() (T, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buf.Length() > 0 && c.gwait == 0 {
		v := c.buf.Remove().(T)
		c.rebalance()
		return v, nil
	}
	if c.closed {
		return zero, conduit.ErrClosed
	}
	return zero, conduit.ErrWouldBlock
}

// PutTimeout is Put bounded by d.
func (c *Bounded[T]) PutTimeout(v T, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Put(ctx, v)
}

// GetTimeout is Get bounded by d.
func (c *Bounded[T]) GetTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Get(ctx)
}

// Close marks the channel closed. Blocked putters fail with conduit.ErrClosed
// immediately; blocked getters fail as well since the buffer is necessarily
// empty when a getter is blocked. Subsequent Put calls fail with
// conduit.ErrClosed; Get drains the remaining buffer first. Close is
// idempotent.
func (c *Bounded[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for c.putters.Length() > 0 {
		w := c.putters.Remove().(*putWaiter[T])
		if w.cancelled {
			continue
		}
		w.granted = true
		c.pwait--
		w.done <- conduit.ErrClosed
	}
	for c.getters.Length() > 0 {
		w := c.getters.Remove().(*getWaiter[T])
		if w.cancelled {
			continue
		}
		w.granted = true
		c.gwait--
		w.done <- getResult[T]{err: conduit.ErrClosed}
	}
}

// rebalance drains buffered messages into waiting getters and refills freed
// slots from waiting putters, preserving FIFO on both sides. Caller holds mu.
func (c *Bounded[T]) rebalance() {
	for {
		progress := false
		for c.buf.Length() > 0 && c.getters.Length() > 0 {
			w := c.getters.Remove().(*getWaiter[T])
			if w.cancelled {
				continue
			}
			w.granted = true
			c.gwait--
			w.done <- getResult[T]{val: c.buf.Remove().(T)}
			progress = true
		}
		for c.buf.Length() < c.capacity && c.putters.Length() > 0 {
			w := c.putters.Remove().(*putWaiter[T])
			if w.cancelled {
				continue
			}
			w.granted = true
			c.pwait--
			c.buf.Add(w.val)
			w.done <- nil
			progress = true
		}
		if !progress {
			return
		}
	}
}

// waitErr maps a done context to the library taxonomy: deadline expiry is
// ErrTimedOut, explicit cancellation propagates as ctx.Err().
func waitErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return conduit.ErrTimedOut
	}
	return ctx.Err()
}
