// Package connpool implements the per-context outbound connection cache: at
// most one TCP stream per destination PID, with concurrent send attempts to
// the same peer coalesced onto the single in-flight connect.
package connpool

import (
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/jabolina/goprocess/definition"
	"github.com/jabolina/goprocess/errs"
	"github.com/jabolina/goprocess/internal/loop"
	"github.com/jabolina/goprocess/pid"
)

// Result is handed to a Get caller's onReady callback once a stream is
// ready, or once it is certain one never will be.
type Result struct {
	Conn net.Conn
	Err  error
}

// Metrics is the narrow instrumentation surface the cache reports through;
// a nil Metrics is valid and every call becomes a no-op.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

// Dialer opens a TCP connection to (ip, port) with TCP_NODELAY enabled. It
// is a seam for tests; New uses DialTCPNoDelay when given a nil Dialer.
type Dialer func(ip string, port uint16) (net.Conn, error)

// DialTCPNoDelay is the production Dialer: net.Dial followed by disabling
// Nagle's algorithm, matching the "open with TCP_NODELAY" step of the
// connection cache's connect procedure.
func DialTCPNoDelay(ip string, port uint16) (net.Conn, error) {
	addr := net.JoinHostPort(ip, strconv.FormatUint(uint64(port), 10))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

// Cache is the connection cache described in spec §4.2. The zero value is
// not usable; build one with New.
type Cache struct {
	log     definition.Logger
	loop    *loop.Loop
	dial    Dialer
	metrics Metrics
	// onClose fires once per peer, on the loop thread, the moment the
	// peer's stream closes - this is the link monitor's on_peer_lost
	// hook.
	onClose func(pid.PID)

	mu      sync.Mutex
	conns   map[pid.PID]net.Conn
	pending map[pid.PID][]func(Result)
}

// New builds a connection cache. onClose may be nil.
func New(l *loop.Loop, log definition.Logger, dial Dialer, onClose func(pid.PID)) *Cache {
	if dial == nil {
		dial = DialTCPNoDelay
	}
	if onClose == nil {
		onClose = func(pid.PID) {}
	}
	return &Cache{
		log:     log,
		loop:    l,
		dial:    dial,
		onClose: onClose,
		conns:   make(map[pid.PID]net.Conn),
		pending: make(map[pid.PID][]func(Result)),
	}
}

// SetMetrics attaches a Metrics recorder. Not safe to call concurrently
// with Get.
func (c *Cache) SetMetrics(m Metrics) { c.metrics = m }

// Get resolves a ready stream to peer, establishing one if necessary.
// onReady is always invoked on the loop thread via Schedule, never
// synchronously on the calling goroutine - this matches the "schedule
// (on_ready, stream)" step of spec §4.2 for both the cache-hit and the
// connect-completion paths.
func (c *Cache) Get(peer pid.PID, onReady func(Result)) {
	c.mu.Lock()
	if conn, ok := c.conns[peer]; ok {
		c.mu.Unlock()
		c.loop.Schedule(func() { onReady(Result{Conn: conn}) })
		return
	}

	queue, inFlight := c.pending[peer]
	c.pending[peer] = append(queue, onReady)
	c.mu.Unlock()

	if inFlight {
		return
	}

	go c.connect(peer)
}

// ActiveCount reports the number of open streams, for tests asserting the
// at-most-one-per-peer invariant.
func (c *Cache) ActiveCount(peer pid.PID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.conns[peer]; ok {
		return 1
	}
	return 0
}

// PendingCount reports the number of callbacks still waiting on an
// in-flight connect to peer.
func (c *Cache) PendingCount(peer pid.PID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending[peer])
}

func (c *Cache) connect(peer pid.PID) {
	conn, err := c.dial(peer.IP(), peer.Port())
	if err != nil {
		wrapped := errors.Wrapf(errs.ErrSocketError, "dial %s", peer)
		if c.log != nil {
			c.log.Warnf("failed connecting to %s: %v", peer, wrapped)
		}
		c.drainPending(peer, Result{Err: wrapped})
		return
	}

	c.mu.Lock()
	c.conns[peer] = conn
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ConnectionOpened()
	}

	c.drainPending(peer, Result{Conn: conn})

	go c.readUntilClose(peer, conn)
}

func (c *Cache) drainPending(peer pid.PID, result Result) {
	c.mu.Lock()
	waiters := c.pending[peer]
	delete(c.pending, peer)
	c.mu.Unlock()

	for _, onReady := range waiters {
		onReady := onReady
		c.loop.Schedule(func() { onReady(result) })
	}
}

// readUntilClose discards bytes from a peer that doesn't talk back - a
// libprocess peer may send an HTTP status line in response to a message
// POST, which the sender ignores - until the stream closes, at which point
// the peer is evicted from the cache and onClose fires.
func (c *Cache) readUntilClose(peer pid.PID, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		_, err := conn.Read(buf)
		if err != nil {
			break
		}
	}
	if err := conn.Close(); err != nil && !errors.Is(err, io.EOF) && c.log != nil {
		c.log.Debugf("closing stream to %s: %v", peer, err)
	}

	c.mu.Lock()
	if existing, ok := c.conns[peer]; ok && existing == conn {
		delete(c.conns, peer)
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.ConnectionClosed()
	}

	c.loop.Schedule(func() { c.onClose(peer) })
}

// CloseAll closes every cached stream, used by Context.Stop.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	conns := make([]net.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
