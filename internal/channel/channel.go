// Package channel owns the live websocket connection between the interview
// room and the interview server.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sjawhar/interview-room/internal/protocol"
)

const (
	defaultConnectTimeout = 15 * time.Second
	writeTimeout          = 10 * time.Second
	closeGrace            = 2 * time.Second
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusFailed     Status = "failed"
)

// Handler receives every inbound frame in arrival order.
type Handler func(protocol.Inbound)

// HandlerID identifies a registration for OffMessage.
type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

type Option func(*Channel)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithHeader(h http.Header) Option {
	return func(c *Channel) {
		c.header = h.Clone()
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// Channel holds at most one connection at a time. It is created for one
// session view and discarded with it.
type Channel struct {
	endpoint       string
	dialer         *websocket.Dialer
	header         http.Header
	connectTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	gen       uint64
	status    Status
	sessionID int64
	handlers  []registration
	nextID    HandlerID
	onDrop    func(error)

	writeMu sync.Mutex
}

func New(endpoint string, opts ...Option) *Channel {
	c := &Channel{
		endpoint:       endpoint,
		dialer:         websocket.DefaultDialer,
		connectTimeout: defaultConnectTimeout,
		logger:         slog.Default(),
		status:         StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect closes any previous connection, dials the server and writes the
// start handshake. It returns once the handshake is on the wire.
func (c *Channel) Connect(ctx context.Context, sessionID int64) error {
	c.closeCurrent()

	c.mu.Lock()
	c.status = StatusConnecting
	c.sessionID = sessionID
	c.mu.Unlock()

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}

	conn, resp, err := c.dialer.DialContext(dialCtx, c.endpoint, c.header)
	if err != nil {
		connErr := &ConnectionError{Op: "dial", URL: c.endpoint, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		c.setStatus(StatusFailed)
		return connErr
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err = conn.WriteJSON(protocol.NewStart(sessionID))
	c.writeMu.Unlock()
	if err != nil {
		_ = conn.Close()
		c.setStatus(StatusFailed)
		return &ConnectionError{Op: "handshake", URL: c.endpoint, Err: err}
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.conn = conn
	c.status = StatusOpen
	c.mu.Unlock()

	c.logger.Info("channel connected", "session_id", sessionID, "url", c.endpoint)
	go c.readLoop(conn, gen)
	return nil
}

// Send writes msg as JSON if the connection is open. Otherwise the message is
// dropped with a warning; Send never fails the caller.
func (c *Channel) Send(msg any) {
	c.mu.Lock()
	conn := c.conn
	status := c.status
	c.mu.Unlock()

	if conn == nil || status != StatusOpen {
		c.logger.Warn("channel send dropped", "error", ErrNotConnected, "status", string(status))
		return
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("channel send failed", "error", err)
	}
}

// OnMessage registers h for every inbound frame. Handlers survive reconnects
// and are cleared by Disconnect.
func (c *Channel) OnMessage(h Handler) HandlerID {
	if h == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.handlers = append(c.handlers, registration{id: c.nextID, fn: h})
	return c.nextID
}

// OffMessage removes a registration. Unknown ids are ignored.
func (c *Channel) OffMessage(id HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.handlers[:0:0]
	for _, reg := range c.handlers {
		if reg.id != id {
			kept = append(kept, reg)
		}
	}
	c.handlers = kept
}

// OnDrop sets the callback run when the connection ends without Disconnect.
func (c *Channel) OnDrop(fn func(error)) {
	c.mu.Lock()
	c.onDrop = fn
	c.mu.Unlock()
}

// Disconnect closes the connection if any and clears every handler. Safe to
// call repeatedly and before Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.handlers = nil
	c.onDrop = nil
	if c.status != StatusIdle {
		c.status = StatusClosed
	}
	c.mu.Unlock()

	c.closeCurrent()
}

func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Channel) SessionID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Channel) closeCurrent() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	_ = conn.Close()
	c.logger.Info("channel disconnected", "url", c.endpoint)
}

func (c *Channel) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.readEnded(conn, gen, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeInbound(data)
		if err != nil {
			c.logger.Warn("channel dropped undecodable frame", "error", err)
			continue
		}
		c.dispatch(gen, msg)
	}
}

func (c *Channel) dispatch(gen uint64, msg protocol.Inbound) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	snapshot := make([]Handler, len(c.handlers))
	for i, reg := range c.handlers {
		snapshot[i] = reg.fn
	}
	c.mu.Unlock()

	for _, h := range snapshot {
		h(msg)
	}
}

func (c *Channel) readEnded(conn *websocket.Conn, gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn != conn {
		// Closed on purpose by Disconnect or a newer Connect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.status = StatusClosed
	} else {
		c.status = StatusFailed
	}
	onDrop := c.onDrop
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Warn("channel dropped", "error", err, "url", c.endpoint)
	if onDrop != nil {
		onDrop(&ConnectionError{Op: "read", URL: c.endpoint, Err: fmt.Errorf("connection lost: %w", err)})
	}
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}
