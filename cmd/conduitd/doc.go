// Command conduitd runs the conduit broker: a daemon that hosts named
// channels, maps, lists, and locks for processes on one host, served over a
// unix-domain socket.
//
// Configuration comes from the environment (CONDUIT_* variables, see
// internal/config); the socket path can also be set with -socket. With
// CONDUIT_METRICS_ADDR set, Prometheus metrics are served on that address.
package main
