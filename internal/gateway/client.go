// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendBuffer     = 256
)

type sendResult int

const (
	sendOK sendResult = iota
	sendFull
	sendClosed
)

// Client is one live connection. conn may be nil in tests, in which case
// only the outbound queue is used.
type Client struct {
	id        string
	gw        *Gateway
	conn      *websocket.Conn
	send      chan Message
	createdAt time.Time
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	idMu     sync.RWMutex
	userID   string
	verified bool

	closeMu sync.Mutex
	closed  bool
}

// NewClient creates a connection bound to identity. A verified identity
// cannot be changed by identity:announce.
func NewClient(gw *Gateway, conn *websocket.Conn, identity auth.Identity) *Client {
	buf := gw.cfg.SendBuffer
	if buf <= 0 {
		buf = defaultSendBuffer
	}

	var limiter *rate.Limiter
	if gw.cfg.EventsPerSecond > 0 {
		burst := gw.cfg.EventBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(gw.cfg.EventsPerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:        uuid.NewString(),
		gw:        gw,
		conn:      conn,
		send:      make(chan Message, buf),
		createdAt: gw.now(),
		limiter:   limiter,
		ctx:       ctx,
		cancel:    cancel,
		userID:    identity.UserID,
		verified:  identity.Verified,
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// CreatedAt returns when the connection was accepted.
func (c *Client) CreatedAt() time.Time { return c.createdAt }

// UserID returns the bound user, or "" before identity is known.
func (c *Client) UserID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.userID
}

func (c *Client) bindUser(userID string) {
	c.idMu.Lock()
	c.userID = userID
	c.idMu.Unlock()
}

func (c *Client) isVerified() bool {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.verified
}

func (c *Client) requireUser() (string, error) {
	if u := c.UserID(); u != "" {
		return u, nil
	}
	return "", ErrIdentityRequired
}

// allow takes one token from the flood limiter. When none is available it
// returns how long until one is, without consuming it.
func (c *Client) allow() (time.Duration, bool) {
	if c.limiter == nil {
		return 0, true
	}
	now := time.Now()
	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return 0, false
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (c *Client) logger() *zerolog.Logger {
	l := c.gw.log.With().Str("conn_id", c.id)
	if u := c.UserID(); u != "" {
		l = l.Str("user_id", u)
	}
	logger := l.Logger()
	return &logger
}

func (c *Client) trySend(msg Message) sendResult {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return sendClosed
	}
	select {
	case c.send <- msg:
		return sendOK
	default:
		return sendFull
	}
}

// close stops the outbound queue. The write loop then sends a close frame.
func (c *Client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.cancel()
}

func (c *Client) readPump() {
	defer func() {
		c.gw.Unregister(c)
		_ = c.conn.Close()
	}()

	maxSize := c.gw.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = defaultMaxMessageSize
	}
	pongWait := c.gw.cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}

	c.conn.SetReadLimit(maxSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger().Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := logging.ContextWithConnectionID(c.ctx, c.id)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				c.logger().Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()
		c.gw.HandleFrame(ctx, c, data)
	}
}

func (c *Client) writePump() {
	writeWait := c.gw.cfg.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	pongWait := c.gw.cfg.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	ticker := time.NewTicker(pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := MarshalMessage(message)
			if err != nil {
				c.logger().Error().Err(err).Str("event", message.Type).Msg("failed to encode message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				metrics.WSErrors.WithLabelValues("write").Inc()
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing. The connection must already be
// registered with the gateway.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
