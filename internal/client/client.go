// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package client is a Go client for the Huddle websocket gateway.
//
// A Client dials /ws, waits for connection:ready, and then exposes every
// server event on Events(). It also satisfies peer.Signaler so a peer.Mesh
// can negotiate calls through it.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/peer"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	eventBuffer      = 256
)

// ErrClosed is returned when using a closed client.
var ErrClosed = errors.New("client closed")

// Event is one server frame with its payload left encoded.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// Options configures how the client authenticates.
type Options struct {
	// Token is sent as a bearer token.
	Token string
	// UserID is sent as X-User-ID for gateways running without auth.
	UserID string
}

// Client is one gateway connection.
type Client struct {
	baseURL string
	opts    Options
	logger  zerolog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	connID string
	userID string

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ peer.Signaler = (*Client)(nil)

// New creates a client for the server at baseURL (http or https). Call
// Connect before use.
func New(baseURL string, opts Options) *Client {
	return &Client{
		baseURL: baseURL,
		opts:    opts,
		logger:  logging.WithComponent("client"),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Connect dials the gateway and waits for connection:ready.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	wsURL, err := buildWebSocketURL(c.baseURL)
	if err != nil {
		return err
	}

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	if c.opts.UserID != "" {
		header.Set("X-User-ID", c.opts.UserID)
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	ready, err := readReady(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.connID = ready.ConnectionID
	c.userID = ready.UserID
	c.logger = c.logger.With().Str("conn_id", c.connID).Logger()
	c.logger.Debug().Str("user_id", c.userID).Msg("connected")

	c.wg.Add(1)
	go c.listen()
	return nil
}

func buildWebSocketURL(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = "/ws"
	parsed.RawQuery = ""
	return parsed.String(), nil
}

func readReady(ctx context.Context, conn *websocket.Conn) (gateway.ConnectionReadyData, error) {
	deadline := time.Now().Add(handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	_, data, err := conn.ReadMessage()
	if err != nil {
		return gateway.ConnectionReadyData{}, fmt.Errorf("read connection:ready: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return gateway.ConnectionReadyData{}, fmt.Errorf("read connection:ready: %w", err)
	}
	if ev.Type != gateway.EventConnectionReady {
		return gateway.ConnectionReadyData{}, fmt.Errorf("expected %s, got %s", gateway.EventConnectionReady, ev.Type)
	}
	var ready gateway.ConnectionReadyData
	if err := ev.Decode(&ready); err != nil {
		return gateway.ConnectionReadyData{}, err
	}
	return ready, nil
}

// listen reads frames until the connection ends, then closes Events().
func (c *Client) listen() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn().Err(err).Msg("connection lost")
				}
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// ConnectionID is the id the gateway assigned to this connection.
func (c *Client) ConnectionID() string { return c.connID }

// UserID is the identity reported in connection:ready, empty until announced
// on gateways running without auth.
func (c *Client) UserID() string { return c.userID }

// Events delivers every server frame in arrival order. It is closed when the
// connection ends.
func (c *Client) Events() <-chan Event { return c.events }

// Emit sends one client event.
func (c *Client) Emit(ctx context.Context, eventType string, data interface{}) error {
	if c.conn == nil {
		return errors.New("client not connected")
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	frame, err := json.Marshal(gateway.Message{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}
	return nil
}

// Announce binds userID to the connection.
func (c *Client) Announce(ctx context.Context, userID string) error {
	return c.Emit(ctx, gateway.EventIdentityAnnounce, gateway.IdentityPayload{UserID: userID})
}

// JoinRoom subscribes to a chat room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	return c.Emit(ctx, gateway.EventRoomJoin, gateway.RoomPayload{RoomID: roomID})
}

// LeaveRoom unsubscribes from a chat room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.Emit(ctx, gateway.EventRoomLeave, gateway.RoomPayload{RoomID: roomID})
}

// SendMessage posts a chat message. slowModeSeconds is the room's configured
// slow mode, 0 for none.
func (c *Client) SendMessage(ctx context.Context, roomID, content string, slowModeSeconds int) error {
	return c.Emit(ctx, gateway.EventMessageSend, gateway.SendPayload{
		RoomID:          roomID,
		Content:         content,
		Type:            "text",
		ClientTimestamp: time.Now().UnixMilli(),
		SlowModeSeconds: slowModeSeconds,
	})
}

// MarkDelivered acknowledges delivery of a message.
func (c *Client) MarkDelivered(ctx context.Context, roomID, messageID string) error {
	return c.Emit(ctx, gateway.EventMessageDelivered, gateway.StatusPayload{RoomID: roomID, MessageID: messageID})
}

// MarkRead marks a message read.
func (c *Client) MarkRead(ctx context.Context, roomID, messageID string) error {
	return c.Emit(ctx, gateway.EventMessageRead, gateway.StatusPayload{RoomID: roomID, MessageID: messageID})
}

// SetTyping starts or stops the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool) error {
	event := gateway.EventTypingStop
	if typing {
		event = gateway.EventTypingStart
	}
	return c.Emit(ctx, event, gateway.TypingPayload{RoomID: roomID})
}

// Pin pins or unpins a message. action is gateway.PinActionPin or
// gateway.PinActionUnpin.
func (c *Client) Pin(ctx context.Context, roomID, messageID, action string) error {
	return c.Emit(ctx, gateway.EventMessagePin, gateway.PinPayload{RoomID: roomID, MessageID: messageID, Action: action})
}

// JoinCall enters a voice room.
func (c *Client) JoinCall(ctx context.Context, roomID string) error {
	return c.Emit(ctx, gateway.EventCallJoin, gateway.CallJoinPayload{RoomID: roomID})
}

// LeaveCall leaves a voice room.
func (c *Client) LeaveCall(ctx context.Context, roomID string) error {
	return c.Emit(ctx, gateway.EventCallLeave, gateway.RoomPayload{RoomID: roomID})
}

// EndCall ends a voice room for everyone. Requires the call.end permission.
func (c *Client) EndCall(ctx context.Context, roomID string) error {
	return c.Emit(ctx, gateway.EventCallEnd, gateway.RoomPayload{RoomID: roomID})
}

// Ping asks the gateway for a pong. Events sent earlier on this connection
// have been handled once the pong arrives.
func (c *Client) Ping(ctx context.Context) error {
	return c.Emit(ctx, gateway.EventPing, nil)
}

// SendSignal relays payload to another connection in the same voice room.
func (c *Client) SendSignal(ctx context.Context, toConnID string, payload json.RawMessage) error {
	return c.Emit(ctx, gateway.EventCallSignal, gateway.SignalPayload{ToConnectionID: toConnID, Payload: payload})
}

// Close sends a normal closure and waits for the reader to stop.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			return
		}
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}
