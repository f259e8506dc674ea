package syncx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

func TestBarrierRounds(t *testing.T) {
	const (
		parties = 4
		rounds  = 20
	)
	b := NewBarrier(parties)
	ctx := context.Background()

	var arrivals [rounds]int32
	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				atomic.AddInt32(&arrivals[r], 1)
				_, err := b.Wait(ctx)
				assert.NoError(t, err)
				// Release implies every party of this round has arrived.
				assert.Equal(t, int32(parties), atomic.LoadInt32(&arrivals[r]))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("barrier rounds deadlocked")
	}

	assert.Equal(t, uint64(rounds), b.Generation())
	assert.Equal(t, 0, b.Waiting())
}

func TestBarrierArrivalIndicesUnique(t *testing.T) {
	const parties = 6
	b := NewBarrier(parties)
	ctx := context.Background()

	indices := make(chan int, parties)
	var wg sync.WaitGroup
	for p := 0; p < parties; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := b.Wait(ctx)
			assert.NoError(t, err)
			indices <- idx
		}()
	}
	wg.Wait()
	close(indices)

	seen := make(map[int]bool)
	for idx := range indices {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, parties)
		assert.False(t, seen[idx], "duplicate arrival index %d", idx)
		seen[idx] = true
	}
	require.Len(t, seen, parties)
}

func TestBarrierWaitTimeoutWithdraws(t *testing.T) {
	b := NewBarrier(2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Wait(ctx)
	assert.ErrorIs(t, err, conduit.ErrTimedOut)
	assert.Equal(t, 0, b.Waiting())

	// The withdrawn arrival must not count toward the next round.
	var wg sync.WaitGroup
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Wait(context.Background())
			assert.NoError(t, err)
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not trip after a withdrawn arrival")
	}
	assert.Equal(t, uint64(1), b.Generation())
}

func TestBarrierSingleParty(t *testing.T) {
	b := NewBarrier(1)
	idx, err := b.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, uint64(1), b.Generation())
}

func TestBarrierPanicsOnBadParties(t *testing.T) {
	assert.Panics(t, func() { NewBarrier(0) })
}
