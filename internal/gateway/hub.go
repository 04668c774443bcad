// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package gateway is the realtime core: presence, room membership, the
// message pipeline with slow mode, typing and pin coordination, and the
// mesh call-signaling relay.
//
// One Gateway owns all state. Each connection's inbound events are handled
// in arrival order on that connection's read goroutine; connections never
// wait on each other. Fan-out is a non-blocking send into every recipient's
// queue, so delivery is at-most-once.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/storage"
)

// ShutdownReason identifies why the gateway stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// pruneInterval is how often idle slow-mode and expired last-seen entries
// are dropped.
const pruneInterval = time.Minute

// Store is the storage the gateway writes through.
type Store interface {
	SaveMessage(ctx context.Context, msg storage.Message) (storage.Message, error)
	SetLastMessage(ctx context.Context, roomID, messageID string) error
	PinMessage(ctx context.Context, roomID, messageID string) ([]string, error)
	UnpinMessage(ctx context.Context, roomID, messageID string) ([]string, error)
	UpdateStatus(ctx context.Context, roomID, messageID string, status storage.Status, readerID string, at time.Time) error
}

// PermissionResolver decides privileged actions.
type PermissionResolver interface {
	IsAllowed(ctx context.Context, userID, roomID, action string) (bool, error)
}

// EventPublisher receives domain events after state has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Auditor records privileged actions and refusals.
type Auditor interface {
	LogAuthzDenied(ctx context.Context, actorID, roomID, action string, source audit.Source)
	LogRoomAction(ctx context.Context, actorID, roomID, action, targetID string, source audit.Source)
}

// Options carries the gateway's collaborators.
type Options struct {
	Store       Store
	Permissions PermissionResolver
	// Events may be nil.
	Events EventPublisher
	// Audit may be nil.
	Audit Auditor
	// AuthMode is auth.ModeJWT or auth.ModeNone.
	AuthMode string
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Gateway owns presence, room and slow-mode state for one process.
type Gateway struct {
	cfg      config.GatewayConfig
	store    Store
	perms    PermissionResolver
	events   EventPublisher
	audit    Auditor
	authMode string
	now      func() time.Time
	log      zerolog.Logger

	presence *Presence
	chat     *Rooms
	calls    *Rooms
	slow     *SlowMode

	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once
}

// New creates a gateway. Call RunWithContext before attaching clients.
func New(cfg config.GatewayConfig, opts Options) *Gateway {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	mode := opts.AuthMode
	if mode == "" {
		mode = auth.ModeJWT
	}
	return &Gateway{
		cfg:        cfg,
		store:      opts.Store,
		perms:      opts.Permissions,
		events:     opts.Events,
		audit:      opts.Audit,
		authMode:   mode,
		now:        now,
		log:        logging.WithComponent("gateway"),
		presence:   NewPresence(now),
		chat:       NewRooms(RoomKindChat),
		calls:      NewRooms(RoomKindCall),
		slow:       NewSlowMode(now),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Presence exposes the presence registry for read-only queries.
func (g *Gateway) Presence() *Presence { return g.presence }

// ChatRooms exposes chat room membership.
func (g *Gateway) ChatRooms() *Rooms { return g.chat }

// CallRooms exposes voice room membership.
func (g *Gateway) CallRooms() *Rooms { return g.calls }

// Register hands a new connection to the run loop. It returns false if the
// gateway has stopped.
func (g *Gateway) Register(c *Client) bool {
	select {
	case g.register <- c:
		return true
	case <-g.done:
		return false
	}
}

// Unregister hands a finished connection to the run loop.
func (g *Gateway) Unregister(c *Client) {
	select {
	case g.unregister <- c:
	case <-g.done:
	}
}

// RunWithContext processes connection lifecycle until ctx is done, then
// closes every connection. Lifecycle events take priority over housekeeping.
func (g *Gateway) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-g.register:
			g.attach(c)
			continue
		case c := <-g.unregister:
			g.detach(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			g.shutdown(ctx)
			return ctx.Err()
		case c := <-g.register:
			g.attach(c)
		case c := <-g.unregister:
			g.detach(c)
		case <-ticker.C:
			g.prune()
		}
	}
}

// prune drops slow-mode entries that can no longer reject a send. The
// configured floor may exceed MaxSlowMode, so retention covers both.
func (g *Gateway) prune() {
	if n := g.slow.Prune(max(MaxSlowMode, g.cfg.MinSlowMode)); n > 0 {
		g.log.Debug().Int("pruned", n).Msg("pruned slow mode entries")
	}
	if n := g.presence.PruneLastSeen(); n > 0 {
		hits, misses, evictions := g.presence.lastSeen.Stats()
		g.log.Debug().Int("pruned", n).Int64("hits", hits).Int64("misses", misses).
			Int64("evictions", evictions).Msg("pruned last seen entries")
	}
}

func (g *Gateway) attach(c *Client) {
	g.mu.Lock()
	g.clients[c.id] = c
	total := len(g.clients)
	g.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	g.deliver(c, Message{Type: EventConnectionReady, Data: ConnectionReadyData{
		ConnectionID: c.id,
		UserID:       c.UserID(),
	}})
	c.logger().Info().Int("total_clients", total).Msg("client connected")
}

// detach removes c and applies its disconnect side effects: presence goes
// offline (unless a newer connection replaced it), chat memberships are
// dropped silently and every voice room sees call:user-left.
func (g *Gateway) detach(c *Client) {
	g.mu.Lock()
	if cur, ok := g.clients[c.id]; !ok || cur != c {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c.id)
	total := len(g.clients)
	g.mu.Unlock()

	c.close()
	metrics.WSConnections.Set(float64(total))

	if userID, lastSeen, ok := g.presence.Disconnect(c.id); ok {
		g.broadcastOffline(userID, lastSeen, c.id)
	}

	g.chat.LeaveAll(c.id)
	for roomID, remaining := range g.calls.LeaveAll(c.id) {
		metrics.CallEvents.WithLabelValues("leave").Inc()
		g.broadcastTo(remaining, Message{Type: EventCallUserLeft, Data: UserLeftData{RoomID: roomID, ConnectionID: c.id}}, "")
	}

	lifetime := g.now().Sub(c.CreatedAt())
	metrics.WSConnectionDuration.Observe(lifetime.Seconds())
	c.logger().Info().Int("total_clients", total).Dur("lifetime", lifetime).Msg("client disconnected")
}

func (g *Gateway) shutdown(ctx context.Context) {
	count := g.ClientCount()
	g.closeAllClients()
	g.doneOnce.Do(func() { close(g.done) })

	g.log.Info().
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("gateway stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (g *Gateway) closeAllClients() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.clients {
		c.close()
		delete(g.clients, id)
	}
	metrics.WSConnections.Set(0)
}

// ClientCount returns the number of attached connections.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) client(connID string) *Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clients[connID]
}

// deliver queues msg for c without blocking. A full queue means c cannot
// keep up; it is closed and will be detached by its own read loop.
func (g *Gateway) deliver(c *Client, msg Message) bool {
	switch c.trySend(msg) {
	case sendOK:
		metrics.WSMessagesSent.Inc()
		return true
	case sendFull:
		metrics.WSDroppedSends.Inc()
		c.logger().Warn().Str("event", msg.Type).Msg("send queue full, closing slow client")
		c.close()
		return false
	default:
		metrics.WSDroppedSends.Inc()
		return false
	}
}

// broadcastTo delivers msg to each listed connection except skip.
// Connections that have gone away are skipped.
func (g *Gateway) broadcastTo(connIDs []string, msg Message, skip string) int {
	targets := make([]*Client, 0, len(connIDs))
	g.mu.RLock()
	for _, id := range connIDs {
		if id == skip {
			continue
		}
		if c, ok := g.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if g.deliver(c, msg) {
			delivered++
		}
	}
	return delivered
}

// broadcastRoom fans msg out to roomID's members in rooms.
func (g *Gateway) broadcastRoom(rooms *Rooms, roomID string, msg Message, skip string) int {
	return g.broadcastTo(rooms.Members(roomID), msg, skip)
}

// broadcastAll fans msg out to every attached connection except skip.
func (g *Gateway) broadcastAll(msg Message, skip string) int {
	g.mu.RLock()
	targets := make([]*Client, 0, len(g.clients))
	for id, c := range g.clients {
		if id != skip {
			targets = append(targets, c)
		}
	}
	g.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if g.deliver(c, msg) {
			delivered++
		}
	}
	return delivered
}

func (g *Gateway) publish(ctx context.Context, topic string, payload interface{}) {
	if g.events == nil {
		return
	}
	if err := g.events.Publish(context.WithoutCancel(ctx), topic, payload); err != nil {
		g.log.Warn().Err(err).Str("topic", topic).Msg("failed to publish event")
	}
}

// persistContext detaches storage calls from the connection so a client
// going away mid-send does not abort the write.
func (g *Gateway) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if g.cfg.PersistTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, g.cfg.PersistTimeout)
}
