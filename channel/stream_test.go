package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

// A producer feeding three items into a two-slot stream with two
// consumers: both consumers must terminate, and every item must be
// delivered exactly once.
func TestStreamEndOfStreamTwoConsumers(t *testing.T) {
	s := NewStream[string](2)
	ctx := context.Background()

	go func() {
		for _, v := range []string{"a", "b", "c"} {
			assert.NoError(t, s.Send(ctx, v))
		}
		assert.NoError(t, s.CloseSend(ctx))
	}()

	var (
		mu   sync.Mutex
		got  []string
		wg   sync.WaitGroup
		ends int
	)
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := s.Recv(ctx)
				if err != nil {
					assert.ErrorIs(t, err, conduit.ErrEndOfStream)
					mu.Lock()
					ends++
					mu.Unlock()
					return
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("consumers did not terminate")
	}

	assert.Equal(t, 2, ends)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, got)
}

func TestStreamSendAfterClose(t *testing.T) {
	s := NewStream[int](4)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, 1))
	require.NoError(t, s.CloseSend(ctx))
	require.NoError(t, s.CloseSend(ctx)) // idempotent

	assert.ErrorIs(t, s.Send(ctx, 2), conduit.ErrClosed)

	v, err := s.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, conduit.ErrEndOfStream)
	_, err = s.Recv(ctx)
	assert.ErrorIs(t, err, conduit.ErrEndOfStream)
}

func TestStreamTryRecv(t *testing.T) {
	s := NewStream[int](2)

	_, err := s.TryRecv()
	assert.ErrorIs(t, err, conduit.ErrWouldBlock)

	require.NoError(t, s.Send(context.Background(), 9))
	v, err := s.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestStreamRecvTimeout(t *testing.T) {
	s := NewStream[int](2)
	_, err := s.RecvTimeout(40 * time.Millisecond)
	assert.ErrorIs(t, err, conduit.ErrTimedOut)
}

func TestStreamManyConsumersAllTerminate(t *testing.T) {
	const (
		items     = 200
		consumers = 5
	)
	s := NewStream[int](8)
	ctx := context.Background()

	go func() {
		for i := 0; i < items; i++ {
			assert.NoError(t, s.Send(ctx, i))
		}
		assert.NoError(t, s.CloseSend(ctx))
	}()

	var (
		count int64
		mu    sync.Mutex
		wg    sync.WaitGroup
	)
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := s.Recv(ctx); err != nil {
					return
				}
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not all observe end of stream")
	}
	assert.Equal(t, int64(items), count)
}
