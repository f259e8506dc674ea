package syncx

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

func TestMutexMutualExclusion(t *testing.T) {
	const (
		workers = 8
		iters   = 10000
	)
	m := NewMutex()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iters; i++ {
				assert.NoError(t, m.Acquire(ctx))
				counter++
				assert.NoError(t, m.Release())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iters, counter)
	assert.False(t, m.Locked())
}

func TestMutexReleaseWhenFree(t *testing.T) {
	m := NewMutex()
	assert.ErrorIs(t, m.Release(), conduit.ErrNotOwner)
}

func TestMutexTryAcquire(t *testing.T) {
	m := NewMutex()
	require.NoError(t, m.TryAcquire())
	assert.ErrorIs(t, m.TryAcquire(), conduit.ErrWouldBlock)
	require.NoError(t, m.Release())
	require.NoError(t, m.TryAcquire())
	require.NoError(t, m.Release())
}

func TestMutexAcquireTimeout(t *testing.T) {
	m := NewMutex()
	require.NoError(t, m.Acquire(context.Background()))
	assert.ErrorIs(t, m.AcquireTimeout(50*time.Millisecond), conduit.ErrTimedOut)
	require.NoError(t, m.Release())
}

func TestMutexFIFOHandoff(t *testing.T) {
	m := NewMutex()
	ctx := context.Background()
	require.NoError(t, m.Acquire(ctx))

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Acquire(ctx))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			assert.NoError(t, m.Release())
		}(i)
		time.Sleep(30 * time.Millisecond) // serialize enqueue order
	}

	require.NoError(t, m.Release())
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestMutexCancelledWaiterSkipped(t *testing.T) {
	m := NewMutex()
	require.NoError(t, m.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		errs <- m.Acquire(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled)

	// The abandoned waiter must not block the handoff.
	require.NoError(t, m.Release())
	require.NoError(t, m.AcquireTimeout(time.Second))
	require.NoError(t, m.Release())
}

func TestReentrantDepth(t *testing.T) {
	r := NewReentrant()
	ctx := context.Background()

	h, err := r.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Depth())

	require.NoError(t, h.Acquire())
	require.NoError(t, h.Acquire())
	assert.Equal(t, 3, h.Depth())

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())
	assert.Equal(t, 1, h.Depth())

	// Still held: a fresh acquire contends.
	_, err = r.TryAcquire()
	assert.ErrorIs(t, err, conduit.ErrWouldBlock)

	require.NoError(t, h.Release())
	assert.Equal(t, 0, h.Depth())

	h2, err := r.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestReentrantStaleHold(t *testing.T) {
	r := NewReentrant()
	h, err := r.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.Release())

	assert.ErrorIs(t, h.Release(), conduit.ErrNotOwner)
	assert.ErrorIs(t, h.Acquire(), conduit.ErrNotOwner)
}
