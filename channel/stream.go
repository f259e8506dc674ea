package channel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/conduitworks/conduit"
)

// item frames a message with the end-of-stream sentinel out of band, so any
// payload type can travel on the stream without reserving a value.
type item[T any] struct {
	val T
	end bool
}

// Stream layers sentinel-based termination on a Bounded channel. A producer
// calls Send for each message and CloseSend exactly once after the last one.
// Consumers call Recv until it returns conduit.ErrEndOfStream.
//
// When several consumers share one Stream, the consumer that observes the
// sentinel re-enqueues it before returning, so every consumer observes the
// sentinel exactly once and terminates. This is the classic re-enqueue
// protocol; prefer Group when the consumer count is known upfront.
type Stream[T any] struct {
	ch     *Bounded[item[T]]
	sealed atomic.Bool
}

// NewStream creates a stream over a bounded channel of the given capacity.
func NewStream[T any](capacity int) *Stream[T] {
	return &Stream[T]{ch: New[item[T]](capacity)}
}

// Send enqueues v, blocking while the stream is full. After CloseSend it
// fails with conduit.ErrClosed.
func (s *Stream[T]) Send(ctx context.Context, v T) error {
	if s.sealed.Load() {
		return conduit.ErrClosed
	}
	return s.ch.Put(ctx, item[T]{val: v})
}

// CloseSend enqueues the sentinel after the last message. Only the first call
// has effect; the stream refuses further Sends.
func (s *Stream[T]) CloseSend(ctx context.Context) error {
	if !s.sealed.CompareAndSwap(false, true) {
		return nil
	}
	return s.ch.Put(ctx, item[T]{end: true})
}

// Recv returns the next message, blocking while the stream is empty. On
// observing the sentinel it re-enqueues it for the remaining consumers and
// returns conduit.ErrEndOfStream; further Recv calls keep returning it.
func (s *Stream[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	it, err := s.ch.Get(ctx)
	if err != nil {
		return zero, err
	}
	if it.end {
		// Removing the sentinel freed a slot and nothing but consumers
		// touch a sealed stream, so the re-enqueue cannot block.
		if err := s.ch.TryPut(it); err != nil {
			return zero, err
		}
		return zero, conduit.ErrEndOfStream
	}
	return it.val, nil
}

// TryRecv is the non-blocking variant of Recv.
func (s *Stream[T]) TryRecv() (T, error) {
	var zero T
	it, err := s.ch.TryGet()
	if err != nil {
		return zero, err
	}
	if it.end {
		if err := s.ch.TryPut(it); err != nil {
			return zero, err
		}
		return zero, conduit.ErrEndOfStream
	}
	return it.val, nil
}

// RecvTimeout is Recv bounded by d.
func (s *Stream[T]) RecvTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Recv(ctx)
}

// Len returns the number of buffered items, sentinel included.
func (s *Stream[T]) Len() int { return s.ch.Len() }
