// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"sort"
	"sync"

	"github.com/tomtom215/huddle/internal/metrics"
)

// Room kinds. Chat and call rooms use the same Rooms type.
const (
	RoomKindChat = "chat"
	RoomKindCall = "call"
)

// Rooms tracks room membership as sets of connection ids. Empty rooms are
// deleted. All operations are idempotent and never fail.
type Rooms struct {
	kind   string
	mu     sync.RWMutex
	rooms  map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// NewRooms creates an empty membership table labelled kind.
func NewRooms(kind string) *Rooms {
	return &Rooms{
		kind:   kind,
		rooms:  make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
}

// Join adds connID to roomID. existing holds the members before the join,
// excluding connID. added is false if connID was already a member.
func (r *Rooms) Join(roomID, connID string) (existing []string, added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	existing = sortedExcept(members, connID)

	if _, ok := members[connID]; ok {
		return existing, false
	}
	members[connID] = struct{}{}

	joined, ok := r.byConn[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.byConn[connID] = joined
	}
	joined[roomID] = struct{}{}

	r.updateGauge()
	return existing, true
}

// Leave removes connID from roomID and returns the remaining members.
// removed is false if connID was not a member.
func (r *Rooms) Leave(roomID, connID string) (remaining []string, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed = r.remove(roomID, connID)
	remaining = sortedExcept(r.rooms[roomID], "")
	r.updateGauge()
	return remaining, removed
}

// LeaveAll removes connID from every room it joined and returns, per room,
// the members left behind.
func (r *Rooms) LeaveAll(connID string) map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.byConn[connID]
	if len(joined) == 0 {
		return nil
	}

	left := make(map[string][]string, len(joined))
	for roomID := range joined {
		r.remove(roomID, connID)
		left[roomID] = sortedExcept(r.rooms[roomID], "")
	}
	r.updateGauge()
	return left
}

// Clear empties roomID and returns who was in it.
func (r *Rooms) Clear(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := sortedExcept(r.rooms[roomID], "")
	for _, connID := range members {
		r.remove(roomID, connID)
	}
	r.updateGauge()
	return members
}

// Members returns roomID's members sorted by connection id.
func (r *Rooms) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedExcept(r.rooms[roomID], "")
}

// Contains reports whether connID is in roomID.
func (r *Rooms) Contains(roomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID][connID]
	return ok
}

// RoomsOf returns the rooms connID is in, sorted.
func (r *Rooms) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedExcept(r.byConn[connID], "")
}

// Size returns the member count of roomID.
func (r *Rooms) Size(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// remove must be called with mu held.
func (r *Rooms) remove(roomID, connID string) bool {
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
	if joined, ok := r.byConn[connID]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.byConn, connID)
		}
	}
	return true
}

func (r *Rooms) updateGauge() {
	metrics.RoomsActive.WithLabelValues(r.kind).Set(float64(len(r.rooms)))
}

func sortedExcept(set map[string]struct{}, skip string) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		if id != skip {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
