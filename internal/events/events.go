// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package events publishes domain events after the gateway has committed
// state. Events go to an in-process Watermill GoChannel or to NATS through
// watermill-nats. Publication is fire-and-forget from the gateway's point
// of view: a failed publish is logged and counted, never surfaced to a
// client.
package events

import "time"

// Topics, relative to the configured prefix.
const (
	TopicMessageCreated  = "message.created"
	TopicMessagePinned   = "message.pinned"
	TopicCallEnded       = "call.ended"
	TopicPresenceChanged = "presence.changed"
)

// Backends.
const (
	BackendGoChannel = "gochannel"
	BackendNATS      = "nats"
)

// PresenceChanged is published on online and offline transitions.
type PresenceChanged struct {
	UserID       string    `json:"userId"`
	Status       string    `json:"status"`
	ConnectionID string    `json:"connectionId,omitempty"`
	At           time.Time `json:"at"`
}

// PinChanged is published after a pin or unpin has been stored.
type PinChanged struct {
	RoomID         string   `json:"roomId"`
	MessageID      string   `json:"messageId"`
	Action         string   `json:"action"`
	UserID         string   `json:"userId"`
	PinnedMessages []string `json:"pinnedMessages"`
}

// CallEnded is published when a call is force-ended.
type CallEnded struct {
	RoomID       string    `json:"roomId"`
	EndedBy      string    `json:"endedBy"`
	Participants int       `json:"participants"`
	At           time.Time `json:"at"`
}
