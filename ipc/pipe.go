package ipc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conduitworks/conduit"
	"github.com/conduitworks/conduit/internal/wire"
)

// Pipe is a duplex message link between exactly two parties, with FIFO
// ordering per direction. One side calls ListenPipe, the other DialPipe; no
// broker is involved.
//
// When the peer closes or dies, the next Receive fails with
// conduit.ErrPeerClosed within bounded time instead of blocking forever, and
// all later calls fail the same way.
type Pipe[T any] struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	rmu  sync.Mutex

	in      chan []byte
	termErr atomic.Value // error
	closed  atomic.Bool

	// host side only
	srv *http.Server
}

func newPipe[T any](conn *websocket.Conn, srv *http.Server) *Pipe[T] {
	p := &Pipe[T]{
		conn: conn,
		in:   make(chan []byte),
		srv:  srv,
	}
	go p.readLoop()
	return p
}

// readLoop pumps inbound frames so a ctx-bounded Receive never has to
// interrupt a websocket read, which would poison the connection.
func (p *Pipe[T]) readLoop() {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if p.closed.Load() {
				p.termErr.Store(error(conduit.ErrClosed))
			} else {
				p.termErr.Store(fmt.Errorf("%w: %v", conduit.ErrPeerClosed, err))
			}
			close(p.in)
			return
		}
		p.in <- data
	}
}

// ListenPipe binds a unix-domain socket and waits for exactly one peer.
// Further connection attempts are rejected.
func ListenPipe[T any](ctx context.Context, socket string) (*Pipe[T], error) {
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", socket, err)
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	accepted := make(chan *websocket.Conn, 1)
	var paired atomic.Bool
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !paired.CompareAndSwap(false, true) {
			http.Error(w, "pipe already paired", http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	})}
	go srv.Serve(ln)

	select {
	case conn := <-accepted:
		return newPipe[T](conn, srv), nil
	case <-ctx.Done():
		srv.Close()
		return nil, waitErr(ctx)
	}
}

// DialPipe connects to a listening pipe.
func DialPipe[T any](ctx context.Context, socket string) (*Pipe[T], error) {
	dialer := &websocket.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socket)
		},
	}
	conn, resp, err := dialer.DialContext(ctx, "ws://conduit/", nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial pipe at %s: %w", socket, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return newPipe[T](conn, nil), nil
}

// Send transmits v to the peer. Encoding failures surface as
// conduit.ErrSerialization and transmit nothing; a gone peer surfaces as
// conduit.ErrPeerClosed.
func (p *Pipe[T]) Send(ctx context.Context, v T) error {
	if p.closed.Load() {
		return conduit.ErrClosed
	}
	data, err := wire.Encode(v)
	if err != nil {
		return err
	}

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if d, ok := ctx.Deadline(); ok {
		_ = p.conn.SetWriteDeadline(d)
	} else {
		_ = p.conn.SetWriteDeadline(time.Time{})
	}
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if ctx.Err() != nil {
			return waitErr(ctx)
		}
		return fmt.Errorf("%w: %v", conduit.ErrPeerClosed, err)
	}
	return nil
}

// Receive returns the next message from the peer, blocking until one
// arrives, ctx ends, or the peer closes.
func (p *Pipe[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	p.rmu.Lock()
	defer p.rmu.Unlock()

	select {
	case data, ok := <-p.in:
		if !ok {
			return zero, p.termErr.Load().(error)
		}
		var v T
		if err := wire.Decode(data, &v); err != nil {
			return zero, err
		}
		return v, nil
	case <-ctx.Done():
		return zero, waitErr(ctx)
	}
}

// ReceiveTimeout is Receive bounded by d.
func (p *Pipe[T]) ReceiveTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Receive(ctx)
}

// Close shuts this end down. The peer's next Receive fails with
// conduit.ErrPeerClosed.
func (p *Pipe[T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.wmu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.wmu.Unlock()
	err := p.conn.Close()
	if p.srv != nil {
		_ = p.srv.Close()
	}
	return err
}
