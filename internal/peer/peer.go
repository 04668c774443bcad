// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package peer runs the client side of a mesh call: one WebRTC peer
// connection per remote participant, negotiated through the gateway's
// call:signal relay.
//
// The package only talks to the transport through Signaler, so it can be
// driven by the Go gateway client or any other relay.
package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Peer negotiates with one remote connection.
//
// The underlying connection is built lazily: an offer or ICE candidate may
// arrive before anything exists locally. Remote candidates that arrive
// before the remote description is set are held and applied once it is.
type Peer struct {
	remoteID string
	signaler Signaler
	newPC    Factory
	logger   zerolog.Logger
	onClose  func(*Peer)

	mu        sync.Mutex
	state     State
	pc        PeerConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

func newPeer(remoteID string, signaler Signaler, newPC Factory, logger zerolog.Logger, onClose func(*Peer)) *Peer {
	return &Peer{
		remoteID: remoteID,
		signaler: signaler,
		newPC:    newPC,
		logger:   logger.With().Str("remote_conn", remoteID).Logger(),
		onClose:  onClose,
	}
}

// RemoteID returns the remote connection id.
func (p *Peer) RemoteID() string { return p.remoteID }

// State returns the current negotiation state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PendingCandidates returns how many remote candidates are waiting for the
// remote description.
func (p *Peer) PendingCandidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// setState must be called with mu held.
func (p *Peer) setState(to State) error {
	if !p.state.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrUnexpectedSignal, p.state, to)
	}
	p.logger.Debug().Str("from", p.state.String()).Str("to", to.String()).Msg("peer state")
	p.state = to
	return nil
}

// ensureConn must be called with mu held.
func (p *Peer) ensureConn() (PeerConnection, error) {
	if p.pc != nil {
		return p.pc, nil
	}
	pc, err := p.newPC()
	if err != nil {
		return nil, err
	}
	pc.OnICECandidate(p.onLocalCandidate)
	pc.OnConnectionStateChange(p.onConnectionState)
	p.pc = pc
	return pc, nil
}

// Offer starts negotiation from this side.
func (p *Peer) Offer(ctx context.Context) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	if err := p.setState(StateOffering); err != nil {
		p.mu.Unlock()
		return err
	}
	pc, err := p.ensureConn()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("offer: %w", err)
	}
	offer, err := pc.CreateOffer(nil)
	if err == nil {
		err = pc.SetLocalDescription(offer)
	}
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("offer: %w", err)
	}
	_ = p.setState(StateOffered)
	p.mu.Unlock()

	return sendSignal(ctx, p.signaler, p.remoteID, Signal{Type: SignalOffer, SDP: offer.SDP})
}

// HandleSignal applies one signal from the remote side.
func (p *Peer) HandleSignal(ctx context.Context, sig Signal) error {
	switch sig.Type {
	case SignalOffer:
		return p.handleOffer(ctx, sig.SDP)
	case SignalAnswer:
		return p.handleAnswer(sig.SDP)
	case SignalCandidate:
		if sig.Candidate == nil {
			return fmt.Errorf("%w: empty candidate", ErrUnexpectedSignal)
		}
		return p.handleCandidate(*sig.Candidate)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Type)
	}
}

func (p *Peer) handleOffer(ctx context.Context, sdp string) error {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	if err := p.setState(StateAnswering); err != nil {
		p.mu.Unlock()
		return err
	}
	pc, err := p.ensureConn()
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("answer: %w", err)
	}
	if err := p.applyRemote(pc, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("answer: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err == nil {
		err = pc.SetLocalDescription(answer)
	}
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("answer: %w", err)
	}
	_ = p.setState(StateAnswered)
	p.mu.Unlock()

	return sendSignal(ctx, p.signaler, p.remoteID, Signal{Type: SignalAnswer, SDP: answer.SDP})
}

func (p *Peer) handleAnswer(sdp string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return ErrClosed
	}
	if p.state != StateOffered {
		return fmt.Errorf("%w: answer while %s", ErrUnexpectedSignal, p.state)
	}
	if err := p.applyRemote(p.pc, webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return p.setState(StateAnswered)
}

func (p *Peer) handleCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return nil
	}
	pc, err := p.ensureConn()
	if err != nil {
		return fmt.Errorf("candidate: %w", err)
	}
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return nil
	}
	if err := pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// applyRemote sets the remote description and flushes held candidates.
// Must be called with mu held.
func (p *Peer) applyRemote(pc PeerConnection, desc webrtc.SessionDescription) error {
	if err := pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			p.logger.Warn().Err(err).Msg("dropping buffered candidate")
		}
	}
	return nil
}

func (p *Peer) onLocalCandidate(c *webrtc.ICECandidate) {
	// nil marks the end of gathering.
	if c == nil {
		return
	}
	if p.State() == StateClosed {
		return
	}
	init := c.ToJSON()
	if err := sendSignal(context.Background(), p.signaler, p.remoteID, Signal{Type: SignalCandidate, Candidate: &init}); err != nil {
		p.logger.Debug().Err(err).Msg("send candidate")
	}
}

func (p *Peer) onConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		p.mu.Lock()
		if p.state == StateAnswered {
			_ = p.setState(StateConnected)
		}
		p.mu.Unlock()
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		p.Close()
	}
}

// Close tears down the connection. It is idempotent.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	pc := p.pc
	p.pending = nil
	p.mu.Unlock()

	if pc != nil {
		if err := pc.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("close peer connection")
		}
	}
	p.logger.Debug().Msg("peer closed")
	if p.onClose != nil {
		p.onClose(p)
	}
}
