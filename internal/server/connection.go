// Package server manages individual gateway connections, handling read/write
// pumps, heartbeat probes, and lifecycle state for each client.
package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikagit25/neurogrid-sub000/internal/auth"
)

// State is a connection's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateAuthenticated
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type connectionOptions struct {
	sendBuffer     int
	writeTimeout   time.Duration
	maxMessageSize int64
	rateBurst      int
	rateInterval   time.Duration
	maxInFlight    int
	logger         *zap.Logger
}

// Connection is one live client. The registry owns it; indices refer to it by id.
type Connection struct {
	id        string
	conn      *websocket.Conn
	addr      string
	createdAt time.Time

	send  chan []byte
	probe chan struct{}

	state        atomic.Int32
	identity     atomic.Pointer[auth.Identity]
	lastActivity atomic.Int64
	failures     atomic.Int32

	// guarded by Registry.mu
	topics map[string]struct{}
	rooms  map[string]struct{}

	limiter  *rateLimiter
	forwards *errgroup.Group
	ctx      context.Context
	cancel   context.CancelFunc

	closeOnce    sync.Once
	writeTimeout time.Duration
	maxMessage   int64
	logger       *zap.Logger
}

func newConnection(conn *websocket.Conn, addr string, opts connectionOptions) *Connection {
	if opts.sendBuffer <= 0 {
		opts.sendBuffer = 256
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = 10 * time.Second
	}
	if opts.maxInFlight <= 0 {
		opts.maxInFlight = 1
	}
	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rateLimiter
	if opts.rateBurst > 0 {
		limiter = newRateLimiter(opts.rateBurst, opts.rateInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	forwards := &errgroup.Group{}
	forwards.SetLimit(opts.maxInFlight)

	id := uuid.NewString()
	now := time.Now()
	c := &Connection{
		id:           id,
		conn:         conn,
		addr:         addr,
		createdAt:    now,
		send:         make(chan []byte, opts.sendBuffer),
		probe:        make(chan struct{}, 1),
		topics:       make(map[string]struct{}),
		rooms:        make(map[string]struct{}),
		limiter:      limiter,
		forwards:     forwards,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: opts.writeTimeout,
		maxMessage:   opts.maxMessageSize,
		logger:       logger.With(zap.String("conn_id", id), zap.String("remote_addr", addr)),
	}
	c.state.Store(int32(StateConnecting))
	c.identity.Store(auth.Anonymous())
	c.lastActivity.Store(now.UnixNano())
	return c
}

// ID returns the server-generated connection id.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address seen at upgrade time.
func (c *Connection) RemoteAddr() string { return c.addr }

// CreatedAt returns when the connection was accepted.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Identity returns the connection's current identity, never nil.
func (c *Connection) Identity() *auth.Identity { return c.identity.Load() }

// LastActivity returns when a frame or pong was last received.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Outbound exposes the queue drained by the write pump.
func (c *Connection) Outbound() <-chan []byte { return c.send }

func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

func (c *Connection) isLive() bool {
	s := c.State()
	return s == StateOpen || s == StateAuthenticated
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// requestProbe asks the write pump to send a ping control frame. A pending
// probe absorbs further requests.
func (c *Connection) requestProbe() bool {
	select {
	case c.probe <- struct{}{}:
		return true
	default:
		return false
	}
}

// closeTransport closes the underlying socket, unblocking both pumps.
func (c *Connection) closeTransport() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug("error closing connection", zap.Error(err))
		}
	})
}

// handleReadError logs the read failure at a level matching its cause.
func (c *Connection) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Info("message exceeded maximum size", zap.Int64("limit", c.maxMessage))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.logger.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debug("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

// readPump feeds inbound frames to the router until the socket fails, then
// removes the connection from every index.
func (c *Connection) readPump(reg *Registry, router *Router) {
	reason := "client closed"
	defer func() {
		reg.Remove(c, reason)
		c.closeTransport()
		_ = c.forwards.Wait()
	}()

	if c.maxMessage > 0 {
		c.conn.SetReadLimit(c.maxMessage)
	}
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			if errors.Is(err, websocket.ErrReadLimit) {
				reason = "message too large"
			}
			return
		}

		c.touch()
		router.Dispatch(c, raw)
	}
}

// writePump is the only writer on the socket. It drains the outbound queue in
// order and sends ping probes requested by the heartbeat monitor.
func (c *Connection) writePump() {
	defer c.closeTransport()

	for c.processWriteEvent() {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Connection) processWriteEvent() bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			return c.writeCloseMessage()
		}
		return c.writeTextMessage(message)
	case <-c.probe:
		return c.writePing()
	}
}

func (c *Connection) writeCloseMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Debug("error writing close message", zap.Error(err))
		}
	}
	return false
}

func (c *Connection) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Debug("error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Info("error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

func (c *Connection) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Info("error writing ping", zap.Error(err))
		}
		return false
	}
	return true
}
