// Package syncx provides synchronization primitives for coordinating
// concurrent workers: a FIFO-fair Mutex with context-aware acquisition, a
// handle-based Reentrant lock, a level-triggered Event, a Condition bound to
// a Mutex, and an N-party cyclic Barrier.
//
// Unlike the standard library equivalents, every blocking operation accepts a
// context, non-blocking Try variants fail with conduit.ErrWouldBlock, and
// misuse (releasing a lock that is not held) surfaces as conduit.ErrNotOwner
// instead of a panic. Waiters are woken in FIFO order throughout, so no
// caller starves while others make progress.
package syncx
