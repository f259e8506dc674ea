//go:build unix

package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/conduitworks/conduit"
)

// acquirePoll is the retry interval while spinning on a contended flock.
const acquirePoll = 2 * time.Millisecond

// FileLock is a cross-process mutex backed by flock on a lock file. Each
// participant opens its own FileLock on the same path; the kernel arbitrates
// between the open file descriptions, so it also works between unrelated
// processes.
//
// A FileLock is not for sharing between goroutines of one process; give each
// its own, or use syncx.Mutex in-process.
type FileLock struct {
	f *os.File

	mu   sync.Mutex
	held bool
}

// OpenLock opens (creating if absent) the lock file at path.
func OpenLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("shm: open lock: %w", err)
	}
	return &FileLock{f: f}, nil
}

// Acquire blocks until the lock is taken. flock has no native timeout, so
// contention is polled; ctx bounds the wait, returning conduit.ErrTimedOut
// on deadline expiry.
func (l *FileLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("shm: %w: lock already held by this descriptor", conduit.ErrNotOwner)
	}

	for {
		err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.held = true
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("shm: flock: %w", err)
		}
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return conduit.ErrTimedOut
			}
			return ctx.Err()
		case <-time.After(acquirePoll):
		}
	}
}

// TryAcquire takes the lock without blocking, failing with
// conduit.ErrWouldBlock when another descriptor holds it.
func (l *FileLock) TryAcquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return fmt.Errorf("shm: %w: lock already held by this descriptor", conduit.ErrNotOwner)
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		l.held = true
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return conduit.ErrWouldBlock
	}
	return fmt.Errorf("shm: flock: %w", err)
}

// AcquireTimeout is Acquire bounded by d.
func (l *FileLock) AcquireTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Acquire(ctx)
}

// Release frees the lock, failing with conduit.ErrNotOwner when this
// descriptor does not hold it. The kernel also releases it automatically if
// the process dies.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return conduit.ErrNotOwner
	}
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("shm: unlock: %w", err)
	}
	l.held = false
	return nil
}

// Close releases the lock if held and closes the lock file.
func (l *FileLock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
		l.held = false
	}
	return l.f.Close()
}
