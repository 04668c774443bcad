// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package peer

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Signal types carried inside call:signal payloads.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

var (
	// ErrUnexpectedSignal is returned when a signal does not fit the current state.
	ErrUnexpectedSignal = errors.New("unexpected signal for peer state")

	// ErrUnknownSignal is returned for an unrecognized signal type.
	ErrUnknownSignal = errors.New("unknown signal type")

	// ErrClosed is returned when negotiating on a closed peer.
	ErrClosed = errors.New("peer connection closed")
)

// Signal is the opaque payload peers exchange through the relay. The
// gateway never looks inside it.
type Signal struct {
	Type      string                   `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Signaler delivers a payload to one remote connection.
type Signaler interface {
	SendSignal(ctx context.Context, toConnID string, payload json.RawMessage) error
}

// DecodeSignal parses a relayed payload.
func DecodeSignal(raw json.RawMessage) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal(raw, &sig); err != nil {
		return Signal{}, fmt.Errorf("decode signal: %w", err)
	}
	switch sig.Type {
	case SignalOffer, SignalAnswer:
		if sig.SDP == "" {
			return Signal{}, fmt.Errorf("decode signal: %s without sdp", sig.Type)
		}
	case SignalCandidate:
		if sig.Candidate == nil {
			return Signal{}, errors.New("decode signal: candidate without body")
		}
	default:
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownSignal, sig.Type)
	}
	return sig, nil
}

func sendSignal(ctx context.Context, s Signaler, to string, sig Signal) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode %s: %w", sig.Type, err)
	}
	return s.SendSignal(ctx, to, raw)
}
