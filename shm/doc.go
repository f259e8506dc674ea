// Package shm provides shared state for processes on one host backed by the
// filesystem: a Cell holding a single word in a memory-mapped file, and a
// FileLock built on flock for cross-process mutual exclusion.
//
// A Cell offers atomic single-word get/set only. Any compound
// read-modify-write, such as an increment, must be wrapped in a FileLock
// acquired by every participant:
//
//	lock.Acquire(ctx)
//	cell.SetUint64(cell.Uint64() + 1)
//	lock.Release()
//
// Frequently polled small values (a running counter, a progress gauge) fit a
// Cell better than a channel: readers never consume and writers never block.
//
// Unix only.
package shm
