package ipc

import (
	"context"
	"time"

	"github.com/conduitworks/conduit/internal/wire"
)

// Lock is a proxy for a broker-hosted named mutex shared by multiple
// processes. The broker hands the lock to waiters in FIFO order and
// force-releases it when the holder's lease expires or its connection drops,
// so a dead client cannot wedge the others.
//
// Ownership is per proxy connection: Release must be called on the same Lock
// that acquired, anything else fails with conduit.ErrNotOwner.
type Lock struct {
	name string
	c    *wsconn
}

// OpenLock opens (creating if absent) the named lock on the broker.
func OpenLock(ctx context.Context, client *Client, name string) (*Lock, error) {
	conn, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Lock{name: name, c: newWSConn(conn)}, nil
}

// Acquire blocks until the lock is granted. A ctx deadline returns
// conduit.ErrTimedOut without holding the lock.
func (l *Lock) Acquire(ctx context.Context) error {
	resp, err := l.c.roundTrip(ctx, &wire.Request{
		Op:        wire.OpLockAcquire,
		Resource:  l.name,
		TimeoutMS: timeoutMS(ctx),
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// TryAcquire takes the lock without blocking, failing with
// conduit.ErrWouldBlock when it is held elsewhere.
func (l *Lock) TryAcquire(ctx context.Context) error {
	resp, err := l.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpLockTryAcquire,
		Resource: l.name,
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// AcquireTimeout is Acquire bounded by d.
func (l *Lock) AcquireTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Acquire(ctx)
}

// Release frees the lock, failing with conduit.ErrNotOwner when this proxy
// does not hold it.
func (l *Lock) Release(ctx context.Context) error {
	resp, err := l.c.roundTrip(ctx, &wire.Request{
		Op:       wire.OpLockRelease,
		Resource: l.name,
	})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Close releases this proxy's connection. The broker frees the lock if this
// proxy still held it.
func (l *Lock) Close() error { return l.c.close() }
