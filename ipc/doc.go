// Package ipc provides cross-process coordination for processes on one host
// that do not share an address space: bounded channels, duplex pipes, shared
// containers, and named locks.
//
// A Host (broker) owns the shared state and serves it over a unix-domain
// socket; clients dial the socket and operate through typed proxies. Frames
// travel as JSON over WebSocket messages, so payloads are caller-defined
// types with ordinary JSON field tags.
//
//	host := ipc.NewHost(ipc.HostOptions{Socket: sock})
//	go host.ListenAndServe(ctx)
//
//	client, _ := ipc.Dial(ctx, sock)
//	ch, _ := ipc.OpenChannel[Order](ctx, client, "orders", 128)
//	err := ch.Put(ctx, Order{ID: 1})
//
// Channel semantics match the intra-process channel package: strict FIFO,
// blocking put/get with backpressure, Try variants failing with
// conduit.ErrWouldBlock. Cross-process operation adds two failure modes:
// conduit.ErrSerialization when a payload cannot be encoded or decoded
// (message-level, the channel stays usable), and conduit.ErrPeerClosed when
// the other side is gone (permanent, calls fail fast instead of blocking).
//
// Pipe connects exactly two parties directly, without a broker, for duplex
// exchange with per-direction FIFO ordering.
//
// Shared Maps and Lists serialize every individual operation on the broker,
// but compound read-modify-write sequences are not atomic; wrap them in a
// named Lock acquired by all participants. Broker locks carry a lease so a
// client that dies holding one cannot wedge the rest of the system.
package ipc
