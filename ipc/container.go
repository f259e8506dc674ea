package ipc

import (
	"context"

	"github.com/conduitworks/conduit/internal/wire"
)

// Map is a typed proxy for a broker-hosted associative container. Every
// individual operation is serialized by the broker; sequences of operations
// are not atomic. Callers needing a compound read-modify-write must wrap it
// in a Lock acquired by all participants.
type Map[V any] struct {
	name string
	c    *wsconn
}

// OpenMap opens (creating if absent) the named map on the broker.
func OpenMap[V any](ctx context.Context, client *Client, name string) (*Map[V], error) {
	conn, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	m := &Map[V]{name: name, c: newWSConn(conn)}
	// A len probe creates the map and validates the connection in one trip.
	if _, err := m.Len(ctx); err != nil {
		m.c.close()
		return nil, err
	}
	return m, nil
}

// Get returns the value stored under key and whether it was present.
func (m *Map[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	resp, err := m.c.roundTrip(ctx, &wire.Request{Op: wire.OpMapGet, Resource: m.name, Key: key})
	if err != nil {
		return zero, false, err
	}
	if err := wire.ToError(resp); err != nil {
		return zero, false, err
	}
	if !resp.Found {
		return zero, false, nil
	}
	var v V
	if err := wire.Decode(resp.Payload, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores v under key.
func (m *Map[V]) Set(ctx context.Context, key string, v V) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	resp, err := m.c.roundTrip(ctx, &wire.Request{Op: wire.OpMapSet, Resource: m.name, Key: key, Payload: payload})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Map[V]) Delete(ctx context.Context, key string) error {
	resp, err := m.c.roundTrip(ctx, &wire.Request{Op: wire.OpMapDelete, Resource: m.name, Key: key})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Keys returns all keys in sorted order.
func (m *Map[V]) Keys(ctx context.Context) ([]string, error) {
	resp, err := m.c.roundTrip(ctx, &wire.Request{Op: wire.OpMapKeys, Resource: m.name})
	if err != nil {
		return nil, err
	}
	if err := wire.ToError(resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// Len returns the number of entries.
func (m *Map[V]) Len(ctx context.Context) (int, error) {
	resp, err := m.c.roundTrip(ctx, &wire.Request{Op: wire.OpMapLen, Resource: m.name})
	if err != nil {
		return 0, err
	}
	if err := wire.ToError(resp); err != nil {
		return 0, err
	}
	return resp.Length, nil
}

// Close releases this proxy's connection; the hosted map is unaffected.
func (m *Map[V]) Close() error { return m.c.close() }

// List is a typed proxy for a broker-hosted sequence. The same atomicity
// discipline as Map applies.
type List[V any] struct {
	name string
	c    *wsconn
}

// OpenList opens (creating if absent) the named list on the broker.
func OpenList[V any](ctx context.Context, client *Client, name string) (*List[V], error) {
	conn, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	l := &List[V]{name: name, c: newWSConn(conn)}
	if _, err := l.Len(ctx); err != nil {
		l.c.close()
		return nil, err
	}
	return l, nil
}

// Append adds v at the end and returns the new length.
func (l *List[V]) Append(ctx context.Context, v V) (int, error) {
	payload, err := wire.Encode(v)
	if err != nil {
		return 0, err
	}
	resp, err := l.c.roundTrip(ctx, &wire.Request{Op: wire.OpListAppend, Resource: l.name, Payload: payload})
	if err != nil {
		return 0, err
	}
	if err := wire.ToError(resp); err != nil {
		return 0, err
	}
	return resp.Length, nil
}

// Get returns the element at index i.
func (l *List[V]) Get(ctx context.Context, i int) (V, error) {
	var zero V
	resp, err := l.c.roundTrip(ctx, &wire.Request{Op: wire.OpListGet, Resource: l.name, Index: i})
	if err != nil {
		return zero, err
	}
	if err := wire.ToError(resp); err != nil {
		return zero, err
	}
	var v V
	if err := wire.Decode(resp.Payload, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Set replaces the element at index i.
func (l *List[V]) Set(ctx context.Context, i int, v V) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return err
	}
	resp, err := l.c.roundTrip(ctx, &wire.Request{Op: wire.OpListSet, Resource: l.name, Index: i, Payload: payload})
	if err != nil {
		return err
	}
	return wire.ToError(resp)
}

// Len returns the current length.
func (l *List[V]) Len(ctx context.Context) (int, error) {
	resp, err := l.c.roundTrip(ctx, &wire.Request{Op: wire.OpListLen, Resource: l.name})
	if err != nil {
		return 0, err
	}
	if err := wire.ToError(resp); err != nil {
		return 0, err
	}
	return resp.Length, nil
}

// Snapshot returns a copy of the whole list at one serialized instant.
func (l *List[V]) Snapshot(ctx context.Context) ([]V, error) {
	resp, err := l.c.roundTrip(ctx, &wire.Request{Op: wire.OpListSnapshot, Resource: l.name})
	if err != nil {
		return nil, err
	}
	if err := wire.ToError(resp); err != nil {
		return nil, err
	}
	out := make([]V, len(resp.Items))
	for i, raw := range resp.Items {
		if err := wire.Decode(raw, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close releases this proxy's connection; the hosted list is unaffected.
func (l *List[V]) Close() error { return l.c.close() }
