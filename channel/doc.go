// Package channel provides a generic bounded FIFO channel with blocking
// put/get and backpressure, plus termination helpers layered on top of it.
//
// Bounded is the core type: a fixed-capacity queue that blocks producers when
// full and consumers when empty. Blocked callers are woken in FIFO order, so
// no producer or consumer can starve while others make progress.
//
// Two termination designs are provided:
//   - Stream frames messages with an end-of-stream sentinel. The first
//     consumer to observe the sentinel re-enqueues it before reporting
//     ErrEndOfStream, so every consumer sharing the stream observes it
//     exactly once.
//   - Group runs a pool of consumers against a Bounded channel and stops them
//     through a shared shutdown Event. This avoids the sentinel re-enqueue
//     dance and is the recommended design when the consumer count is known.
package channel
