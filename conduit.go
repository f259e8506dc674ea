// Package conduit provides in-host coordination primitives for producer/consumer
// pipelines: bounded FIFO channels with backpressure, termination signaling,
// thread-level synchronization primitives, and cross-process variants that work
// without a shared address space.
//
// Packages:
//   - channel: generic bounded FIFO queue with blocking put/get, plus sentinel
//     based end-of-stream framing and consumer groups
//   - syncx: Mutex, Reentrant lock, level-triggered Event, Condition, Barrier
//   - ipc: cross-process channel, duplex pipe, shared containers and named locks
//     served by a broker over a unix-domain socket
//   - shm: mmap-backed shared cell and flock-based cross-process lock
//
// The root package carries only the error taxonomy shared by all of them.
package conduit
