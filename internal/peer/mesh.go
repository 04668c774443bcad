// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package peer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/huddle/internal/logging"
)

// Mesh holds one Peer per remote participant of a voice room.
//
// Members already in the room offer to newcomers: a call:user-joined makes
// this side offer, while call:existing-users only updates the participant
// list and waits for the offers to arrive.
type Mesh struct {
	signaler Signaler
	newPC    Factory
	logger   zerolog.Logger

	mu           sync.Mutex
	peers        map[string]*Peer
	participants map[string]struct{}
}

// NewMesh creates an empty mesh.
func NewMesh(signaler Signaler, newPC Factory) *Mesh {
	return &Mesh{
		signaler:     signaler,
		newPC:        newPC,
		logger:       logging.WithComponent("peer"),
		peers:        make(map[string]*Peer),
		participants: make(map[string]struct{}),
	}
}

// HandleExistingUsers records the members present when this side joined.
func (m *Mesh) HandleExistingUsers(connIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range connIDs {
		m.participants[id] = struct{}{}
	}
}

// HandleUserJoined offers to a newly joined member.
func (m *Mesh) HandleUserJoined(ctx context.Context, connID string) error {
	p := m.peerFor(connID)
	if err := p.Offer(ctx); err != nil {
		p.Close()
		return fmt.Errorf("offer to %s: %w", connID, err)
	}
	return nil
}

// HandleSignal routes a relayed payload to the sender's peer, creating it
// when an offer or candidate arrives first.
func (m *Mesh) HandleSignal(ctx context.Context, fromConnID string, raw json.RawMessage) error {
	sig, err := DecodeSignal(raw)
	if err != nil {
		return err
	}

	var p *Peer
	if sig.Type == SignalAnswer {
		var ok bool
		if p, ok = m.Peer(fromConnID); !ok {
			return fmt.Errorf("%w: answer from unknown connection %s", ErrUnexpectedSignal, fromConnID)
		}
	} else {
		p = m.peerFor(fromConnID)
	}

	if err := p.HandleSignal(ctx, sig); err != nil {
		return fmt.Errorf("signal from %s: %w", fromConnID, err)
	}
	return nil
}

// HandleUserLeft releases the departed member's peer.
func (m *Mesh) HandleUserLeft(connID string) {
	m.mu.Lock()
	p := m.peers[connID]
	delete(m.participants, connID)
	m.mu.Unlock()

	if p != nil {
		p.Close()
	}
}

// HandleEnded closes every peer after the room was ended.
func (m *Mesh) HandleEnded() {
	m.Close()
}

// Close releases every peer and forgets all participants.
func (m *Mesh) Close() {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.participants = make(map[string]struct{})
	m.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
}

// Peer returns the peer for a remote connection.
func (m *Mesh) Peer(connID string) (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[connID]
	return p, ok
}

// Peers returns the remote connection ids with a live peer, sorted.
func (m *Mesh) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ParticipantCount includes this side.
func (m *Mesh) ParticipantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.participants) + 1
}

func (m *Mesh) peerFor(connID string) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[connID] = struct{}{}
	if p, ok := m.peers[connID]; ok {
		return p
	}
	p := newPeer(connID, m.signaler, m.newPC, m.logger, m.forget)
	m.peers[connID] = p
	return p
}

func (m *Mesh) forget(p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.peers[p.remoteID] == p {
		delete(m.peers, p.remoteID)
	}
}
