// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/huddle/internal/cache"
	"github.com/tomtom215/huddle/internal/metrics"
)

// Last-seen times of offline users are kept in a bounded LRU.
const (
	lastSeenCapacity = 100000
	lastSeenTTL      = 30 * 24 * time.Hour
)

// PresenceStatus is online or offline.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceInfo is a snapshot of one user's presence.
type PresenceInfo struct {
	UserID       string         `json:"userId"`
	Status       PresenceStatus `json:"status"`
	ConnectionID string         `json:"connectionId,omitempty"`
	Since        *time.Time     `json:"since,omitempty"`
	LastSeen     *time.Time     `json:"lastSeen,omitempty"`
}

type presenceEntry struct {
	connID string
	since  time.Time
}

func (e presenceEntry) info(userID string) PresenceInfo {
	since := e.since
	return PresenceInfo{UserID: userID, Status: PresenceOnline, ConnectionID: e.connID, Since: &since}
}

// Presence maps users to their current connection. At most one entry
// exists per user; a newer registration replaces the older one without
// touching the older connection.
//
// byConn is the reverse index used on disconnect.
type Presence struct {
	mu       sync.RWMutex
	byUser   map[string]presenceEntry
	byConn   map[string]string
	lastSeen *cache.LRU[time.Time]
	now      func() time.Time
}

// NewPresence creates an empty registry.
func NewPresence(now func() time.Time) *Presence {
	if now == nil {
		now = time.Now
	}
	return &Presence{
		byUser:   make(map[string]presenceEntry),
		byConn:   make(map[string]string),
		lastSeen: cache.NewLRU[time.Time](lastSeenCapacity, lastSeenTTL, now),
		now:      now,
	}
}

// Register binds userID to connID and returns the connection it replaced,
// if any. If connID was bound to a different user, that binding is
// dropped first and its user is returned as unbound.
func (p *Presence) Register(userID, connID string) (replaced, unbound string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.byConn[connID]; ok && prev != userID {
		delete(p.byConn, connID)
		if e, ok := p.byUser[prev]; ok && e.connID == connID {
			delete(p.byUser, prev)
			p.lastSeen.Add(prev, p.now())
			unbound = prev
		}
	}

	if e, ok := p.byUser[userID]; ok && e.connID != connID {
		delete(p.byConn, e.connID)
		replaced = e.connID
	}

	since := p.now()
	if e, ok := p.byUser[userID]; ok && e.connID == connID {
		since = e.since
	}
	p.byUser[userID] = presenceEntry{connID: connID, since: since}
	p.byConn[connID] = userID
	p.lastSeen.Remove(userID)

	metrics.PresenceOnline.Set(float64(len(p.byUser)))
	return replaced, unbound
}

// Disconnect removes connID's binding. ok is false when connID was never
// registered or had already been replaced by a newer connection.
func (p *Presence) Disconnect(connID string) (userID string, lastSeen time.Time, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userID, ok = p.byConn[connID]
	if !ok {
		return "", time.Time{}, false
	}
	delete(p.byConn, connID)

	e, exists := p.byUser[userID]
	if !exists || e.connID != connID {
		return "", time.Time{}, false
	}
	delete(p.byUser, userID)
	lastSeen = p.now()
	p.lastSeen.Add(userID, lastSeen)

	metrics.PresenceOnline.Set(float64(len(p.byUser)))
	return userID, lastSeen, true
}

// ConnectionFor returns the current connection of userID.
func (p *Presence) ConnectionFor(userID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byUser[userID]
	return e.connID, ok
}

// UserFor returns the user bound to connID.
func (p *Presence) UserFor(connID string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.byConn[connID]
	return u, ok
}

// Lookup returns userID's presence. Users never seen are reported offline
// without a lastSeen.
func (p *Presence) Lookup(userID string) PresenceInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if e, ok := p.byUser[userID]; ok {
		return e.info(userID)
	}
	info := PresenceInfo{UserID: userID, Status: PresenceOffline}
	if ts, ok := p.lastSeen.Get(userID); ok {
		info.LastSeen = &ts
	}
	return info
}

// Online lists online users sorted by id.
func (p *Presence) Online() []PresenceInfo {
	p.mu.RLock()
	out := make([]PresenceInfo, 0, len(p.byUser))
	for userID, e := range p.byUser {
		out = append(out, e.info(userID))
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Count returns the number of online users.
func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}

// PruneLastSeen drops expired last-seen entries and returns how many went.
func (p *Presence) PruneLastSeen() int {
	return p.lastSeen.CleanupExpired()
}
