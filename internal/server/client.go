// Package server adapts gorilla WebSocket connections to relay.Conn, handling
// the read side, the write pump, rate limiting, and lifecycle control.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

// Client wraps one WebSocket connection as a relay.Conn.
//
// Sends are queued on a bounded channel drained by the write pump. A full
// queue makes Send wait up to WriteWait; a peer that stays stalled that long
// is closed, so its session leaves the room instead of silently missing
// messages. Receive is called from the session goroutine only.
type Client struct {
	conn *websocket.Conn
	addr string
	cfg  Config
	log  *slog.Logger

	send        chan string
	done        chan struct{}
	rateLimiter *rateLimiter

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once

	readErr error
}

// NewClient wraps conn and starts its write pump. The returned Client must
// eventually be closed.
func NewClient(conn *websocket.Conn, addr string, cfg Config, logger *slog.Logger) *Client {
	c := newClient(conn, addr, cfg, logger)
	c.setupReadConnection()
	go c.writePump()
	return c
}

func newClient(conn *websocket.Conn, addr string, cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.Sanitize()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		conn:        conn,
		addr:        addr,
		cfg:         cfg,
		log:         logger.With("remote", addr),
		send:        make(chan string, cfg.SendBuffer),
		done:        make(chan struct{}),
		rateLimiter: newRateLimiter(cfg.RateLimit),
	}
}

// Send queues text for delivery, waiting up to WriteWait for room in the
// queue. It fails with relay.ErrConnClosed after Close. When the queue stays
// full for WriteWait the connection is closed and Send returns
// relay.ErrSendBufferFull.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return relay.ErrConnClosed
	}

	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return relay.ErrConnClosed
	default:
	}

	timer := time.NewTimer(c.cfg.WriteWait)
	defer timer.Stop()

	select {
	case c.send <- text:
		return nil
	case <-c.done:
		return relay.ErrConnClosed
	case <-timer.C:
		c.log.Warn("ws.send_stalled", "queued", len(c.send), "wait", c.cfg.WriteWait)
		_ = c.Close()
		return relay.ErrSendBufferFull
	}
}

// Receive blocks for the next text or binary frame. Messages over the rate
// limit are dropped and reading continues.
func (c *Client) Receive(ctx context.Context) relay.Inbound {
	if c.readErr != nil {
		return relay.Disconnect(c.readErr)
	}

	for {
		if err := ctx.Err(); err != nil {
			c.readErr = err
			return relay.Disconnect(err)
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			c.readErr = err
			return relay.Disconnect(err)
		}

		if !c.checkRateLimit() {
			continue
		}
		return relay.Message(string(raw))
	}
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once and from any goroutine.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		deadline := time.Now().Add(c.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !isExpectedCloseError(werr) {
			c.log.Debug("ws.close_frame_failed", "err", werr)
		}
		if cerr := c.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

// setupReadConnection configures the read limit, deadlines and pong handler.
func (c *Client) setupReadConnection() {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Debug("ws.read_deadline_failed", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
}

// logReadError logs a read failure at a level matching how expected it is.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("ws.message_too_large", "limit", c.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug("ws.client_disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug("ws.connection_closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("ws.unexpected_close", "err", err)
	default:
		c.log.Info("ws.read_error", "err", err)
	}
}

func (c *Client) checkRateLimit() bool {
	if c.rateLimiter.allow() {
		return true
	}
	c.log.Warn("ws.rate_limited",
		"burst", c.cfg.RateLimit.Burst,
		"interval", c.cfg.RateLimit.RefillInterval)
	return false
}

// writePump is the only writer of data frames. It exits on Close or on the
// first write failure, closing the connection so Receive unblocks.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case text := <-c.send:
			if !c.writeText(text) {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// writeText writes one message as one text frame.
func (c *Client) writeText(text string) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.log.Debug("ws.write_deadline_failed", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("ws.write_failed", "err", err)
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	deadline := time.Now().Add(c.cfg.WriteWait)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Info("ws.ping_failed", "err", err)
		}
		return false
	}
	return true
}
