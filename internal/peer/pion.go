// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package peer

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of *webrtc.PeerConnection a Peer drives.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Factory builds a fresh peer connection.
type Factory func() (PeerConnection, error)

// MediaConfig selects the ICE servers and the media sections offered.
type MediaConfig struct {
	ICEServers []string
	Audio      bool
	Video      bool
}

// DefaultMediaConfig is an audio-only call using a public STUN server.
func DefaultMediaConfig() MediaConfig {
	return MediaConfig{
		ICEServers: []string{"stun:stun.l.google.com:19302"},
		Audio:      true,
	}
}

// NewPionFactory returns a Factory producing receive-only pion peer
// connections. Media capture is left to the embedding application, which
// can add tracks before negotiation starts.
func NewPionFactory(cfg MediaConfig) Factory {
	return func() (PeerConnection, error) {
		mediaEngine := &webrtc.MediaEngine{}
		if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}

		registry := &interceptor.Registry{}
		if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
			return nil, fmt.Errorf("register interceptors: %w", err)
		}

		se := webrtc.SettingEngine{}
		se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

		api := webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		)

		var servers []webrtc.ICEServer
		if len(cfg.ICEServers) > 0 {
			servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
		}
		pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
		if err != nil {
			return nil, fmt.Errorf("new peer connection: %w", err)
		}

		// Recvonly transceivers give the SDP m-lines with ICE credentials.
		kinds := make([]webrtc.RTPCodecType, 0, 2)
		if cfg.Audio {
			kinds = append(kinds, webrtc.RTPCodecTypeAudio)
		}
		if cfg.Video {
			kinds = append(kinds, webrtc.RTPCodecTypeVideo)
		}
		for _, kind := range kinds {
			if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				_ = pc.Close()
				return nil, fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		return pc, nil
	}
}
