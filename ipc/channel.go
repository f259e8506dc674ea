package ipc

import (
	"context"
	"time"

	"github.com/conduitworks/conduit/internal/wire"
)

// Channel is a typed proxy for a broker-hosted bounded channel. Semantics
// match channel.Bounded: strict FIFO, Put blocks while full, Get blocks while
// empty. One operation is outstanding per proxy; open additional proxies for
// concurrent producers or consumers in the same process.
type Channel[T any] struct {
	name string
	c    *wsconn
}

// OpenChannel opens (creating if absent) the named channel on the broker.
// Capacity applies only on creation; pass 0 for the broker default.
func OpenChannel[T any](ctx context.Context, client *Client, name string, capacity int) (*Channel[T], error) {
	conn, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	ch := &Channel[T]{name: name, c: newWSConn(conn)}
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpOpenChannel,
		Resource: name,
		Capacity: capacity,
	})
	if err != nil {
		ch.c.close()
		return nil, err
	}
	if err := wire.ToError(resp); err != nil {
		ch.c.close()
		return nil, err
	}
	return ch, nil
}

// Put appends v, blocking while the channel is full. Encoding failures
// surface as conduit.ErrSerialization without consuming channel state; a
// dead broker surfaces as conduit.ErrPeerClosed.
func (ch *Channel[T]) Put(ctx context.Context, v T) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:        wire.OpPut,
		Resource:  ch.name,
		Payload:   payload,
		TimeoutMS: timeoutMS(ctx),
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Get removes and returns the oldest message, blocking while the channel is
// empty.
func (ch *Channel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:        wire.OpGet,
		Resource:  ch.name,
		TimeoutMS: timeoutMS(ctx),
	})
	if err != nil {
		return zero, err
	}
	if err := wire.ToError(resp); err != nil {
		return zero, err
	}
	var v T
	if err := wire.Decode(resp.Payload, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// TryPut is the non-blocking Put, failing with conduit.ErrWouldBlock when
// the channel is full.
func (ch *Channel[T]) TryPut(ctx context.Context, v T) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpTryPut,
		Resource: ch.name,
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// TryGet is the non-blocking Get, failing with conduit.ErrWouldBlock when
// the channel is empty.
func (ch *Channel[T]) TryGet(ctx context.Context) (T, error) {
	var zero T
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpTryGet,
		Resource: ch.name,
	})
	if err != nil {
		return zero, err
	}
	if err := wire.ToError(resp); err != nil {
		return zero, err
	}
	var v T
	if err := wire.Decode(resp.Payload, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// PutTimeout is Put bounded by d.
func (ch *Channel[T]) PutTimeout(v T, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return ch.Put(ctx, v)
}

// GetTimeout is Get bounded by d.
func (ch *Channel[T]) GetTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return ch.Get(ctx)
}

// Shutdown closes the channel on the broker: every client's blocked and
// future calls fail with conduit.ErrClosed.
func (ch *Channel[T]) Shutdown(ctx context.Context) error {
	resp, err := ch.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpCloseChannel,
		Resource: ch.name,
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Close releases this proxy's connection. The hosted channel itself is
// unaffected; use Shutdown for that.
func (ch *Channel[T]) Close() error {
	return ch.c.close()
}
