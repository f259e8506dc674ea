package ipc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conduitworks/conduit"
	"github.com/conduitworks/conduit/internal/wire"
)

// readGrace is how long a client waits, after its own deadline passes, for
// the broker's timed_out reply before declaring the connection dead.
const readGrace = time.Second

// Client connects to a broker socket. Each resource proxy opened through a
// Client runs on its own connection, so one pending blocking operation never
// stalls another proxy.
type Client struct {
	socket string
	dialer *websocket.Dialer
}

// Dial verifies the broker at the given unix-domain socket is reachable and
// returns a Client for it.
func Dial(ctx context.Context, socket string) (*Client, error) {
	c := &Client{
		socket: socket,
		dialer: &websocket.Dialer{
			NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		},
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	conn.Close()
	return c, nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, "ws://conduit/ipc", nil)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial broker at %s: %w", c.socket, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, nil
}

// wsconn serializes request/response exchanges on one broker connection. One
// operation is outstanding at a time; concurrent callers queue on the mutex.
type wsconn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	broken bool
}

func newWSConn(conn *websocket.Conn) *wsconn {
	return &wsconn{conn: conn}
}

// roundTrip sends req and waits for the matching response. A ctx deadline is
// forwarded to the broker in the request, so timeouts normally come back as
// protocol-level timed_out replies and leave the connection healthy; if the
// reply does not arrive within readGrace of ctx ending, or the transport
// fails, the connection is declared broken and every later call fails with
// conduit.ErrPeerClosed.
func (c *wsconn) roundTrip(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return nil, conduit.ErrPeerClosed
	}
	c.nextID++
	req.ID = c.nextID

	data, err := wire.Encode(req)
	if err != nil {
		return nil, err
	}

	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		c.broken = true
		return nil, fmt.Errorf("%w: %v", conduit.ErrPeerClosed, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now().Add(readGrace))
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.broken = true
		return nil, fmt.Errorf("%w: %v", conduit.ErrPeerClosed, err)
	}

	for {
		_, buf, err := c.conn.ReadMessage()
		if err != nil {
			c.broken = true
			if ctx.Err() != nil {
				return nil, waitErr(ctx)
			}
			return nil, fmt.Errorf("%w: %v", conduit.ErrPeerClosed, err)
		}
		var resp wire.Response
		if err := wire.Decode(buf, &resp); err != nil {
			c.broken = true
			return nil, err
		}
		if resp.ID != req.ID {
			// Stale reply to an abandoned call; skip it.
			continue
		}
		return &resp, nil
	}
}

func (c *wsconn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// timeoutMS converts a ctx deadline into the wire timeout field: -1 blocks
// indefinitely, otherwise the remaining time in milliseconds (minimum 1).
func timeoutMS(ctx context.Context) int64 {
	d, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	ms := time.Until(d).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

func waitErr(ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return conduit.ErrTimedOut
	}
	return ctx.Err()
}
