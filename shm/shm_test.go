//go:build unix

package shm

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduitworks/conduit"
)

func TestCellSharedBetweenMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cell")

	a, err := CreateCell(path)
	require.NoError(t, err)
	defer a.Close()

	b, err := OpenCell(path)
	require.NoError(t, err)
	defer b.Close()

	a.SetUint64(42)
	assert.Equal(t, uint64(42), b.Uint64())

	b.SetInt64(-7)
	assert.Equal(t, int64(-7), a.Int64())

	a.SetFloat64(3.25)
	assert.Equal(t, 3.25, b.Float64())
	a.SetFloat64(math.Inf(1))
	assert.True(t, math.IsInf(b.Float64(), 1))
}

func TestOpenCellRejectsShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))
	_, err := OpenCell(path)
	assert.Error(t, err)
}

func TestFileLockTryAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	a, err := OpenLock(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenLock(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.TryAcquire())
	assert.ErrorIs(t, b.TryAcquire(), conduit.ErrWouldBlock)

	require.NoError(t, a.Release())
	require.NoError(t, b.TryAcquire())
	require.NoError(t, b.Release())
}

func TestFileLockAcquireTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	a, err := OpenLock(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenLock(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.TryAcquire())
	assert.ErrorIs(t, b.AcquireTimeout(80*time.Millisecond), conduit.ErrTimedOut)
	require.NoError(t, a.Release())
	require.NoError(t, b.AcquireTimeout(time.Second))
	require.NoError(t, b.Release())
}

func TestFileLockReleaseSemantics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	l, err := OpenLock(path)
	require.NoError(t, err)
	defer l.Close()

	assert.ErrorIs(t, l.Release(), conduit.ErrNotOwner)
	require.NoError(t, l.TryAcquire())
	assert.ErrorIs(t, l.TryAcquire(), conduit.ErrNotOwner)
	require.NoError(t, l.Release())
}

// Two lock descriptors guarding a shared cell: the compound read/increment/
// write never loses an update.
func TestFileLockGuardsCell(t *testing.T) {
	dir := t.TempDir()
	cellPath := filepath.Join(dir, "counter")
	lockPath := filepath.Join(dir, "counter.lock")

	cell, err := CreateCell(cellPath)
	require.NoError(t, err)
	defer cell.Close()

	const (
		workers = 2
		iters   = 100
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock, err := OpenLock(lockPath)
			if !assert.NoError(t, err) {
				return
			}
			defer lock.Close()
			view, err := OpenCell(cellPath)
			if !assert.NoError(t, err) {
				return
			}
			defer view.Close()

			for i := 0; i < iters; i++ {
				assert.NoError(t, lock.AcquireTimeout(5*time.Second))
				view.SetUint64(view.Uint64() + 1)
				assert.NoError(t, lock.Release())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(workers*iters), cell.Uint64())
}
