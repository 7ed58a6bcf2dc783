// Client wraps one websocket connection: read/write pumps, per-connection
// rate limiting, and the decoded handoff of inbound frames to the hub.
package server

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/minglehq/realtime/internal/protocol"
)

const (
	pongWait      = 60 * time.Second
	pingInterval  = 54 * time.Second
	writeDeadline = 10 * time.Second
)

// Client is one live transport connection. A client starts unauthenticated;
// identity is set by the hub when the connection completes its online
// handshake, and only then does it have a presence entry.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	addr     string
	identity string
	closed   bool

	maxMessageSize int64
	limiter        *rate.Limiter
}

// NewClient wraps an accepted websocket connection. The send channel is
// buffered so the hub's dispatch never blocks on a slow reader.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()
	limiter := rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst)

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, 256),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        limiter,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		zap.L().Warn("error setting read deadline", zap.String("conn", c.id), zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError classifies a read failure and reports whether the read
// loop should stop. Every non-nil error ends the loop; classification only
// affects log noise.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	log := zap.L().With(zap.String("conn", c.id), zap.String("addr", c.addr))

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("inbound frame exceeded maximum size",
			zap.Int64("max_bytes", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Debug("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Debug("connection closed", zap.Error(err))
	default:
		log.Warn("websocket read error", zap.Error(err))
	}
	return true
}

// readPump reads frames until the connection dies, decoding each into a
// typed inbound event. Invalid frames are dropped without touching the
// connection; valid ones are handed to the hub's single processing stream.
func (c *Client) readPump() {
	defer func() {
		// The run loop may already be gone during shutdown.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			zap.L().Warn("error closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				return
			}
			continue
		}

		if !c.limiter.Allow() {
			zap.L().Warn("rate limit exceeded, dropping event",
				zap.String("conn", c.id), zap.String("addr", c.addr))
			continue
		}

		event, err := protocol.Decode(raw)
		if err != nil {
			rejectedFrames.Inc()
			zap.L().Debug("dropping invalid frame",
				zap.String("conn", c.id), zap.Error(err))
			continue
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, event: event}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. Events queued by the hub leave in FIFO order, so each
// connection observes its events in the order they were dispatched.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			zap.L().Warn("error closing connection in writePump", zap.Error(err))
		}
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				zap.L().Warn("error setting write deadline", zap.String("conn", c.id), zap.Error(err))
				return
			}
			if !ok {
				// Hub closed the channel; say goodbye.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One envelope per websocket message; recipients JSON-decode
			// each message as a whole frame.
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					zap.L().Warn("error writing frame", zap.String("conn", c.id), zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
