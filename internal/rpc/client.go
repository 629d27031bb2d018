// Package rpc implements the TCP client for the pi agent's line-delimited
// JSON protocol.
//
// The client owns one socket at a time, correlates responses to in-flight
// requests by id, enforces per-request timeouts, and fans every other frame
// out to event subscribers.
package rpc

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adragomir/pi.nvim/internal/promise"
	"github.com/adragomir/pi.nvim/internal/wire"
	"github.com/adragomir/pi.nvim/pkg/logger"
)

const (
	// DefaultRequestTimeout bounds one request/response round-trip.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultHost and DefaultPort locate a locally running agent.
	DefaultHost = "127.0.0.1"
	DefaultPort = 9999

	readBufferSize = 64 * 1024
)

// ErrNotConnected is the rejection for sends attempted while disconnected.
var ErrNotConnected = errors.New("not connected")

// ErrConnectionClosed is the rejection for requests still pending when the
// connection goes away.
var ErrConnectionClosed = errors.New("connection closed")

// ErrTimeout is the rejection for requests whose response never arrived.
var ErrTimeout = errors.New("request timed out")

// nextRequestID is process-wide so ids are never reused, even across
// reconnects and overlapping clients.
var nextRequestID atomic.Int64

// EventHandler receives event frames in subscription order.
type EventHandler func(wire.Event)

// UIRequestHandler answers agent-initiated extension_ui_request events. The
// returned payload is sent back as a fire-and-forget extension_ui_response
// frame echoing the request id.
type UIRequestHandler func(*wire.UIRequestEvent) any

type pendingRequest struct {
	id     string
	future *promise.Promise[*wire.Response]
	timer  *time.Timer
}

type subscription struct {
	id int
	fn EventHandler
}

// Client is the wire-protocol client. The zero value is not usable; call New.
type Client struct {
	timeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	connected bool
	pending   map[string]*pendingRequest
	subs      []subscription
	nextSubID int
	uiHandler UIRequestHandler
}

// Option configures a Client.
type Option func(*Client)

// WithRequestTimeout overrides the per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a disconnected client.
func New(opts ...Option) *Client {
	c := &Client{
		timeout: DefaultRequestTimeout,
		pending: make(map[string]*pendingRequest),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the agent and starts the read loop. Connecting while already
// connected is a no-op.
func (c *Client) Connect(host string, port int) error {
	if host == "" {
		host = DefaultHost
	}
	if port <= 0 {
		port = DefaultPort
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}

	c.mu.Lock()
	if c.connected {
		// Lost the race against a concurrent Connect; keep the first socket.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	logger.Debugf("[rpc] connected to %s", addr)
	go c.readLoop(conn)
	return nil
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close disconnects and rejects every pending request with
// ErrConnectionClosed. Close is idempotent.
func (c *Client) Close() error {
	c.teardown(nil, nil)
	return nil
}

// Send transmits one command frame and returns a promise for its response
// envelope. The promise rejects fast when disconnected, on write failure, on
// timeout, and on disconnect while pending.
func (c *Client) Send(cmdType string, payload any) *promise.Promise[*wire.Response] {
	fut := promise.New[*wire.Response]()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		fut.Reject(fmt.Errorf("send %s: %w", cmdType, ErrNotConnected))
		return fut
	}

	id := "req_" + strconv.FormatInt(nextRequestID.Add(1), 10)
	frame, err := wire.EncodeCommand(cmdType, id, payload)
	if err != nil {
		c.mu.Unlock()
		fut.Reject(err)
		return fut
	}

	req := &pendingRequest{id: id, future: fut}
	req.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	c.pending[id] = req
	conn := c.conn
	c.mu.Unlock()

	// Write outside the lock: a stalled peer must not block other sends or
	// the dispatch path. net.Conn is safe for concurrent writes.
	if _, err := conn.Write(frame); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		req.timer.Stop()
		fut.Reject(fmt.Errorf("send %s: %w", cmdType, err))
		return fut
	}

	logger.Tracef("[rpc] sent %s id=%s", cmdType, id)
	return fut
}

// SendUIResponse answers an extension_ui_request out of band. There is no
// correlated promise; the agent does not acknowledge UI responses.
func (c *Client) SendUIResponse(requestID string, payload any) error {
	frame, err := wire.EncodeCommand(wire.EventUIResponse, requestID, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	_, err = conn.Write(frame)
	return err
}

// OnEvent subscribes fn to event frames and returns its unsubscribe, which is
// safe to call more than once.
func (c *Client) OnEvent(fn EventHandler) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs = append(c.subs, subscription{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, sub := range c.subs {
			if sub.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// SetUIRequestHandler installs the handler for extension_ui_request events.
func (c *Client) SetUIRequestHandler(fn UIRequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uiHandler = fn
}

// readLoop decodes frames off the socket until it fails or is closed.
func (c *Client) readLoop(conn net.Conn) {
	dec := wire.NewDecoder()
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				c.dispatch(frame)
			}
		}
		if err != nil {
			c.teardown(conn, err)
			return
		}
	}
}

// dispatch routes one decoded frame to its pending request or to the event
// subscribers.
func (c *Client) dispatch(frame []byte) {
	resp, isResponse, err := wire.ParseResponse(frame)
	if isResponse {
		if err != nil {
			logger.Warnf("[rpc] dropped malformed response: %v", err)
			return
		}
		c.resolvePending(resp)
		return
	}

	evt, err := wire.ParseEvent(frame)
	if err != nil {
		logger.Warnf("[rpc] dropped malformed event: %v", err)
		return
	}

	if uiReq, ok := evt.(*wire.UIRequestEvent); ok {
		c.answerUIRequest(uiReq)
	}

	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, sub := range subs {
		deliverEvent(sub, evt)
	}
}

// deliverEvent isolates one subscriber: a panic is logged and does not stop
// delivery to the remaining subscribers.
func deliverEvent(sub subscription, evt wire.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[rpc] event subscriber %d panicked on %s: %v", sub.id, evt.EventType(), r)
		}
	}()
	sub.fn(evt)
}

func (c *Client) resolvePending(resp *wire.Response) {
	c.mu.Lock()
	req := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.mu.Unlock()

	if req == nil {
		// Late response for a timed-out or unknown id.
		logger.Tracef("[rpc] discarded response for id=%s", resp.ID)
		return
	}
	req.timer.Stop()
	req.future.Resolve(resp)
}

func (c *Client) expire(id string) {
	c.mu.Lock()
	req := c.pending[id]
	delete(c.pending, id)
	timeout := c.timeout
	c.mu.Unlock()

	if req == nil {
		return
	}
	logger.Warnf("[rpc] request %s timed out after %s", id, timeout)
	req.future.Reject(fmt.Errorf("%w after %s (id=%s)", ErrTimeout, timeout, id))
}

func (c *Client) answerUIRequest(req *wire.UIRequestEvent) {
	c.mu.Lock()
	handler := c.uiHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[rpc] ui request handler panicked on %s: %v", req.ID, r)
		}
	}()

	payload := handler(req)
	if payload == nil {
		return
	}
	if err := c.SendUIResponse(req.ID, payload); err != nil {
		logger.Warnf("[rpc] ui response for %s failed: %v", req.ID, err)
	}
}

// teardown releases the socket and rejects all pending requests. When conn is
// non-nil, it only acts if conn is still the live connection, so a stale read
// loop cannot tear down a newer connection.
func (c *Client) teardown(conn net.Conn, cause error) {
	c.mu.Lock()
	if conn != nil && c.conn != conn {
		c.mu.Unlock()
		return
	}
	if !c.connected && c.conn == nil {
		c.mu.Unlock()
		return
	}
	live := c.conn
	c.conn = nil
	c.connected = false
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	if cause != nil {
		logger.Warnf("[rpc] connection lost: %v", cause)
	} else {
		logger.Debugf("[rpc] connection closed")
	}

	for _, req := range pending {
		req.timer.Stop()
		req.future.Reject(fmt.Errorf("%s: %w", req.id, ErrConnectionClosed))
	}
	if live != nil {
		_ = live.Close()
	}
}
