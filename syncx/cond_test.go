package syncx

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

func TestCondSignal(t *testing.T) {
	m := NewMutex()
	c := NewCond(m)
	ctx := context.Background()

	ready := false
	done := make(chan error, 1)
	go func() {
		if err := m.Acquire(ctx); err != nil {
			done <- err
			return
		}
		err := c.WaitFor(ctx, func() bool { return ready })
		if rerr := m.Release(); err == nil {
			err = rerr
		}
		done <- err
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, m.Acquire(ctx))
	ready = true
	c.Signal()
	require.NoError(t, m.Release())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by signal")
	}
}

func TestCondWaitWithoutLock(t *testing.T) {
	c := NewCond(NewMutex())
	assert.ErrorIs(t, c.Wait(context.Background()), conduit.ErrNotOwner)
}

func TestCondTimeoutReacquiresLock(t *testing.T) {
	m := NewMutex()
	c := NewCond(m)

	require.NoError(t, m.Acquire(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, c.Wait(ctx), conduit.ErrTimedOut)
	// The lock must be held again even after a timed-out wait.
	assert.True(t, m.Locked())
	require.NoError(t, m.Release())
}

func TestCondBroadcast(t *testing.T) {
	m := NewMutex()
	c := NewCond(m)
	ctx := context.Background()

	ready := false
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Acquire(ctx))
			assert.NoError(t, c.WaitFor(ctx, func() bool { return ready }))
			assert.NoError(t, m.Release())
		}()
	}
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, m.Acquire(ctx))
	ready = true
	c.Broadcast()
	require.NoError(t, m.Release())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not release all waiters")
	}
}

// A producer/consumer queue driven entirely by the condition variable, with
// randomized timing to flush out missed-wakeup races.
func TestCondNoMissedWakeups(t *testing.T) {
	const (
		total     = 400
		consumers = 4
	)
	m := NewMutex()
	c := NewCond(m)
	ctx := context.Background()

	var (
		queue    []int
		produced = false
		popped   int
		wg       sync.WaitGroup
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				assert.NoError(t, m.Acquire(ctx))
				err := c.WaitFor(ctx, func() bool { return len(queue) > 0 || produced })
				assert.NoError(t, err)
				if len(queue) == 0 {
					assert.NoError(t, m.Release())
					return
				}
				queue = queue[1:]
				popped++
				assert.NoError(t, m.Release())
			}
		}()
	}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < total; i++ {
		require.NoError(t, m.Acquire(ctx))
		queue = append(queue, i)
		c.Signal()
		require.NoError(t, m.Release())
		if rng.Intn(8) == 0 {
			time.Sleep(time.Duration(rng.Intn(200)) * time.Microsecond)
		}
	}

	require.NoError(t, m.Acquire(ctx))
	produced = true
	c.Broadcast()
	require.NoError(t, m.Release())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers stalled; wakeup was missed")
	}

	require.NoError(t, m.Acquire(ctx))
	assert.Equal(t, total, popped)
	assert.Empty(t, queue)
	require.NoError(t, m.Release())
}
