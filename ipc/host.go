package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/conduitworks/conduit"
	"github.com/conduitworks/conduit/channel"
	"github.com/conduitworks/conduit/internal/logging"
	"github.com/conduitworks/conduit/internal/monitoring"
	"github.com/conduitworks/conduit/internal/wire"
	"github.com/conduitworks/conduit/syncx"
)

// HostOptions configures a broker.
type HostOptions struct {
	// Socket is the unix-domain socket path to listen on.
	Socket string
	// DefaultCapacity applies to channels opened without one.
	DefaultCapacity int
	// LockLease bounds how long a named lock may be held before the broker
	// force-releases it. Zero disables leasing.
	LockLease time.Duration
	// OpsPerSecond and Burst rate-limit operations per connection. Zero
	// disables limiting.
	OpsPerSecond int
	Burst        int

	Logger  *logging.Logger
	Metrics *monitoring.Metrics
}

// Host is the broker: it owns the channels, maps, lists, and locks shared by
// client processes and serves them over a unix-domain socket.
type Host struct {
	opts     HostOptions
	log      *logging.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader

	// ctx set by ListenAndServe; blocking ops are bounded by it so a
	// stopping broker releases every parked client.
	ctx context.Context

	mu       sync.Mutex
	channels map[string]*channel.Bounded[json.RawMessage]
	maps     map[string]*hostMap
	lists    map[string]*hostList
	locks    map[string]*hostLock
}

// hostMap is a shared associative container. The mutex is the implicit
// coordinator: single operations are serialized, compound sequences are the
// caller's problem (see Lock).
type hostMap struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

type hostList struct {
	mu    sync.Mutex
	items []json.RawMessage
}

// hostLock is a named lock with lease-based recovery. The epoch counter keeps
// a stale lease timer from releasing a newer hold.
type hostLock struct {
	sem *syncx.Mutex

	mu     sync.Mutex
	holder string
	epoch  uint64
	lease  *time.Timer
}

// NewHost creates a broker. Missing options fall back to sane defaults; a nil
// logger discards output.
func NewHost(opts HostOptions) *Host {
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = 64
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	return &Host{
		opts:     opts,
		log:      opts.Logger.Named("broker"),
		metrics:  opts.Metrics,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		ctx:      context.Background(),
		channels: make(map[string]*channel.Bounded[json.RawMessage]),
		maps:     make(map[string]*hostMap),
		lists:    make(map[string]*hostList),
		locks:    make(map[string]*hostLock),
	}
}

// Metrics returns the broker's metrics collector, for mounting its Handler.
func (h *Host) Metrics() *monitoring.Metrics { return h.metrics }

// ListenAndServe serves the broker socket until ctx is cancelled, then shuts
// the listener down and returns nil.
func (h *Host) ListenAndServe(ctx context.Context) error {
	// A stale socket file from a previous run would fail the bind.
	if err := os.Remove(h.opts.Socket); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", h.opts.Socket)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.opts.Socket, err)
	}
	h.ctx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", h.handleUpgrade)
	srv := &http.Server{Handler: mux}

	h.log.Info("broker listening", zap.String("socket", h.opts.Socket))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		return srv.Close()
	})
	return eg.Wait()
}

func (h *Host) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	h.metrics.Connections.Inc()
	defer h.metrics.Connections.Dec()
	h.log.Debug("client connected", zap.String("conn", connID))
	defer h.releaseLocksHeldBy(connID)

	var limiter *rate.Limiter
	if h.opts.OpsPerSecond > 0 {
		burst := h.opts.Burst
		if burst <= 0 {
			burst = h.opts.OpsPerSecond
		}
		limiter = rate.NewLimiter(rate.Limit(h.opts.OpsPerSecond), burst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			h.log.Debug("client disconnected", zap.String("conn", connID), zap.Error(err))
			return
		}
		if limiter != nil {
			if err := limiter.Wait(h.ctx); err != nil {
				return
			}
		}

		var req wire.Request
		resp := &wire.Response{}
		if err := wire.Decode(data, &req); err != nil {
			resp.Code, resp.Error = wire.CodeBadRequest, "malformed request frame"
		} else {
			resp = h.dispatch(connID, &req)
		}

		out, err := wire.Encode(resp)
		if err != nil {
			h.log.Error("encode response", zap.Error(err))
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// dispatch applies one operation and records its outcome.
func (h *Host) dispatch(connID string, req *wire.Request) *wire.Response {
	start := time.Now()
	resp := h.apply(connID, req)
	resp.ID = req.ID

	status := "ok"
	if !resp.OK {
		status = resp.Code
	}
	h.metrics.ObserveOp(req.Op, status, start)
	return resp
}

func (h *Host) apply(connID string, req *wire.Request) *wire.Response {
	switch req.Op {
	case wire.OpOpenChannel:
		ch := h.channelFor(req.Resource, req.Capacity)
		return okResp(&wire.Response{Length: ch.Len()})

	case wire.OpPut, wire.OpTryPut:
		ch := h.channelFor(req.Resource, 0)
		var err error
		if req.Op == wire.OpTryPut {
			err = ch.TryPut(req.Payload)
		} else {
			ctx, cancel := h.opContext(req.TimeoutMS)
			err = ch.Put(ctx, req.Payload)
			cancel()
		}
		h.metrics.Depth.WithLabelValues(req.Resource).Set(float64(ch.Len()))
		return errResp(err, &wire.Response{})

	case wire.OpGet, wire.OpTryGet:
		ch := h.channelFor(req.Resource, 0)
		var v json.RawMessage
		var err error
		if req.Op == wire.OpTryGet {
			v, err = ch.TryGet()
		} else {
			ctx, cancel := h.opContext(req.TimeoutMS)
			v, err = ch.Get(ctx)
			cancel()
		}
		h.metrics.Depth.WithLabelValues(req.Resource).Set(float64(ch.Len()))
		return errResp(err, &wire.Response{Payload: v})

	case wire.OpCloseChannel:
		h.channelFor(req.Resource, 0).Close()
		return okResp(&wire.Response{})

	case wire.OpMapGet, wire.OpMapSet, wire.OpMapDelete, wire.OpMapKeys, wire.OpMapLen:
		return h.applyMap(req)

	case wire.OpListAppend, wire.OpListGet, wire.OpListSet, wire.OpListLen, wire.OpListSnapshot:
		return h.applyList(req)

	case wire.OpLockAcquire, wire.OpLockTryAcquire, wire.OpLockRelease:
		return h.applyLock(connID, req)

	default:
		return &wire.Response{Code: wire.CodeBadRequest, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func (h *Host) applyMap(req *wire.Request) *wire.Response {
	m := h.mapFor(req.Resource)
	m.mu.Lock()
	defer m.mu.Unlock()

	switch req.Op {
	case wire.OpMapGet:
		v, ok := m.data[req.Key]
		return okResp(&wire.Response{Payload: v, Found: ok})
	case wire.OpMapSet:
		m.data[req.Key] = req.Payload
		return okResp(&wire.Response{})
	case wire.OpMapDelete:
		delete(m.data, req.Key)
		return okResp(&wire.Response{})
	case wire.OpMapKeys:
		keys := make([]string, 0, len(m.data))
		for k := range m.data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return okResp(&wire.Response{Keys: keys})
	default: // OpMapLen
		return okResp(&wire.Response{Length: len(m.data)})
	}
}

func (h *Host) applyList(req *wire.Request) *wire.Response {
	l := h.listFor(req.Resource)
	l.mu.Lock()
	defer l.mu.Unlock()

	switch req.Op {
	case wire.OpListAppend:
		l.items = append(l.items, req.Payload)
		return okResp(&wire.Response{Length: len(l.items)})
	case wire.OpListGet:
		if req.Index < 0 || req.Index >= len(l.items) {
			return &wire.Response{Code: wire.CodeBadRequest, Error: "index out of range"}
		}
		return okResp(&wire.Response{Payload: l.items[req.Index]})
	case wire.OpListSet:
		if req.Index < 0 || req.Index >= len(l.items) {
			return &wire.Response{Code: wire.CodeBadRequest, Error: "index out of range"}
		}
		l.items[req.Index] = req.Payload
		return okResp(&wire.Response{})
	case wire.OpListSnapshot:
		items := make([]json.RawMessage, len(l.items))
		copy(items, l.items)
		return okResp(&wire.Response{Items: items, Length: len(items)})
	default: // OpListLen
		return okResp(&wire.Response{Length: len(l.items)})
	}
}

func (h *Host) applyLock(connID string, req *wire.Request) *wire.Response {
	l := h.lockFor(req.Resource)

	switch req.Op {
	case wire.OpLockTryAcquire:
		if err := l.sem.TryAcquire(); err != nil {
			return errResp(err, &wire.Response{})
		}
		h.leaseOut(l, req.Resource, connID)
		return okResp(&wire.Response{})

	case wire.OpLockAcquire:
		ctx, cancel := h.opContext(req.TimeoutMS)
		err := l.sem.Acquire(ctx)
		cancel()
		if err != nil {
			return errResp(err, &wire.Response{})
		}
		h.leaseOut(l, req.Resource, connID)
		return okResp(&wire.Response{})

	default: // OpLockRelease
		return errResp(h.releaseLock(l, connID), &wire.Response{})
	}
}

// leaseOut records the new holder and arms the lease timer.
func (h *Host) leaseOut(l *hostLock, name, connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holder = connID
	l.epoch++
	h.metrics.LocksHeld.Inc()
	if h.opts.LockLease > 0 {
		epoch := l.epoch
		l.lease = time.AfterFunc(h.opts.LockLease, func() {
			if h.expireLease(l, epoch) {
				h.log.Warn("lock lease expired", zap.String("lock", name), zap.String("conn", connID))
			}
		})
	}
}

// expireLease force-releases the lock if the same hold is still active.
func (h *Host) expireLease(l *hostLock, epoch uint64) bool {
	l.mu.Lock()
	if l.holder == "" || l.epoch != epoch {
		l.mu.Unlock()
		return false
	}
	l.holder = ""
	l.lease = nil
	l.mu.Unlock()
	h.metrics.LocksHeld.Dec()
	_ = l.sem.Release()
	return true
}

func (h *Host) releaseLock(l *hostLock, connID string) error {
	l.mu.Lock()
	if l.holder != connID {
		l.mu.Unlock()
		return conduit.ErrNotOwner
	}
	l.holder = ""
	l.epoch++
	if l.lease != nil {
		l.lease.Stop()
		l.lease = nil
	}
	l.mu.Unlock()
	h.metrics.LocksHeld.Dec()
	return l.sem.Release()
}

// releaseLocksHeldBy frees every lock held by a disconnected client.
func (h *Host) releaseLocksHeldBy(connID string) {
	h.mu.Lock()
	locks := make([]*hostLock, 0, len(h.locks))
	for _, l := range h.locks {
		locks = append(locks, l)
	}
	h.mu.Unlock()

	for _, l := range locks {
		if err := h.releaseLock(l, connID); err == nil {
			h.log.Debug("released orphaned lock", zap.String("conn", connID))
		}
	}
}

// opContext bounds a blocking operation: negative blocks until the broker
// stops, zero is treated as a minimal bound, positive is a deadline.
func (h *Host) opContext(timeoutMS int64) (context.Context, context.CancelFunc) {
	if timeoutMS < 0 {
		return context.WithCancel(h.ctx)
	}
	if timeoutMS == 0 {
		timeoutMS = 1
	}
	return context.WithTimeout(h.ctx, time.Duration(timeoutMS)*time.Millisecond)
}

func (h *Host) channelFor(name string, capacity int) *channel.Bounded[json.RawMessage] {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[name]
	if !ok {
		if capacity <= 0 {
			capacity = h.opts.DefaultCapacity
		}
		ch = channel.New[json.RawMessage](capacity)
		h.channels[name] = ch
	}
	return ch
}

func (h *Host) mapFor(name string) *hostMap {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.maps[name]
	if !ok {
		m = &hostMap{data: make(map[string]json.RawMessage)}
		h.maps[name] = m
	}
	return m
}

func (h *Host) listFor(name string) *hostList {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.lists[name]
	if !ok {
		l = &hostList{}
		h.lists[name] = l
	}
	return l
}

func (h *Host) lockFor(name string) *hostLock {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[name]
	if !ok {
		l = &hostLock{sem: syncx.NewMutex()}
		h.locks[name] = l
	}
	return l
}

func okResp(r *wire.Response) *wire.Response {
	r.OK = true
	return r
}

func errResp(err error, r *wire.Response) *wire.Response {
	if err == nil {
		return okResp(r)
	}
	r.Code, r.Error = wire.FromError(err)
	return r
}
