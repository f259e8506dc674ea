package channel

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/conduitworks/conduit"
	"github.com/conduitworks/conduit/syncx"
)

// Group runs a pool of consumers against one Bounded channel and stops them
// through a shared shutdown Event instead of a sentinel message. Workers
// observe the event between gets, so no re-enqueue protocol is needed and the
// channel can keep serving other parties after the group stops.
type Group[T any] struct {
	ch     *Bounded[T]
	stop   *syncx.Event
	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGroup creates a consumer group over ch. The stop event may be shared
// with other groups to coordinate a fleet-wide shutdown; pass nil to give the
// group a private one.
func NewGroup[T any](ch *Bounded[T], stop *syncx.Event) *Group[T] {
	if stop == nil {
		stop = syncx.NewEvent()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Group[T]{
		ch:     ch,
		stop:   stop,
		eg:     &errgroup.Group{},
		ctx:    ctx,
		cancel: cancel,
	}
	go func() {
		<-stop.Done()
		cancel()
	}()
	return g
}

// Go starts n consumers, each invoking fn for every message it receives. A
// worker exits cleanly when the shutdown event is set or the channel is
// closed, and with an error when fn fails. Messages already handed to fn are
// never re-queued.
func (g *Group[T]) Go(n int, fn func(T) error) {
	for i := 0; i < n; i++ {
		g.eg.Go(func() error {
			for {
				if g.stop.IsSet() {
					return nil
				}
				v, err := g.ch.Get(g.ctx)
				switch {
				case err == nil:
					if err := fn(v); err != nil {
						return err
					}
				case errors.Is(err, context.Canceled):
					return nil
				case conduit.IsTerminal(err):
					return nil
				default:
					return err
				}
			}
		})
	}
}

// Shutdown sets the stop event. Every worker (of this group and of any group
// sharing the event) returns after finishing its in-flight message.
func (g *Group[T]) Shutdown() { g.stop.Set() }

// Wait blocks until all workers have returned and reports the first fn error.
func (g *Group[T]) Wait() error {
	err := g.eg.Wait()
	g.cancel()
	return err
}

// Stop is Shutdown followed by Wait.
func (g *Group[T]) Stop() error {
	g.Shutdown()
	return g.Wait()
}
