// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/storage"
)

// Client to server events.
const (
	EventIdentityAnnounce = "identity:announce"
	EventRoomJoin         = "room:join"
	EventRoomLeave        = "room:leave"
	EventMessageSend      = "message:send"
	EventMessageDelivered = "message:delivered"
	EventMessageRead      = "message:read"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
	EventMessagePin       = "message:pin"
	EventCallJoin         = "call:join"
	EventCallSignal       = "call:signal"
	EventCallLeave        = "call:leave"
	EventCallEnd          = "call:end"
	EventPing             = "ping"
)

// Server to client events.
const (
	EventConnectionReady   = "connection:ready"
	EventPresenceOnline    = "presence:online"
	EventPresenceOffline   = "presence:offline"
	EventMessageNew        = "message:new"
	EventMessageStatus     = "message:status"
	EventTypingStatus      = "typing:status"
	EventRoomUpdate        = "room:update"
	EventCallExistingUsers = "call:existing-users"
	EventCallUserJoined    = "call:user-joined"
	EventCallUserLeft      = "call:user-left"
	EventCallEnded         = "call:ended"
	EventError             = "error"
	EventPong              = "pong"
)

// Pin actions.
const (
	PinActionPin   = "pin"
	PinActionUnpin = "unpin"
)

// RoomUpdatePinType is the room:update type for pin changes.
const RoomUpdatePinType = "pin_update"

// Message is one frame on the wire in either direction.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// envelope is an inbound frame with its payload left undecoded.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound payloads. Identity fields (senderId, userId, readerId) are
// accepted for wire compatibility but the connection's bound identity is
// used instead.

type IdentityPayload struct {
	UserID string `json:"userId" validate:"userid"`
}

type RoomPayload struct {
	RoomID string `json:"roomId" validate:"roomid"`
}

type SendPayload struct {
	RoomID          string `json:"roomId" validate:"roomid"`
	SenderID        string `json:"senderId,omitempty"`
	Content         string `json:"content" validate:"required,max=8000"`
	Type            string `json:"type" validate:"omitempty,max=32"`
	ClientTimestamp int64  `json:"clientTimestamp,omitempty"`
	SlowModeSeconds int    `json:"slowModeSeconds" validate:"gte=0,lte=86400"`
}

type StatusPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
	RoomID    string `json:"roomId" validate:"roomid"`
	ReaderID  string `json:"readerId,omitempty"`
}

type TypingPayload struct {
	RoomID string `json:"roomId" validate:"roomid"`
	UserID string `json:"userId,omitempty"`
}

type PinPayload struct {
	RoomID    string `json:"roomId" validate:"roomid"`
	MessageID string `json:"messageId" validate:"required,max=128"`
	Action    string `json:"action" validate:"oneof=pin unpin"`
}

type CallJoinPayload struct {
	RoomID string `json:"roomId" validate:"roomid"`
	UserID string `json:"userId,omitempty"`
}

type SignalPayload struct {
	ToConnectionID string          `json:"toConnectionId" validate:"required,max=64"`
	Payload        json.RawMessage `json:"payload" validate:"required"`
}

// Outbound payloads.

type ConnectionReadyData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
}

type PresenceData struct {
	UserID   string     `json:"userId"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type MessageStatusData struct {
	MessageID string         `json:"messageId"`
	RoomID    string         `json:"roomId"`
	Status    storage.Status `json:"status"`
	ReadBy    string         `json:"readBy,omitempty"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
}

type TypingStatusData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type RoomUpdateData struct {
	Type           string   `json:"type"`
	RoomID         string   `json:"roomId"`
	MessageID      string   `json:"messageId"`
	Action         string   `json:"action"`
	PinnedMessages []string `json:"pinnedMessages"`
}

type ExistingUsersData struct {
	RoomID        string   `json:"roomId"`
	ConnectionIDs []string `json:"connectionIds"`
}

type UserJoinedData struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

type SignalData struct {
	Payload          json.RawMessage `json:"payload"`
	FromConnectionID string          `json:"fromConnectionId"`
}

type UserLeftData struct {
	RoomID       string `json:"roomId"`
	ConnectionID string `json:"connectionId"`
}

type CallEndedData struct {
	RoomID string `json:"roomId"`
}

type ErrorData struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Event            string `json:"event,omitempty"`
	RemainingSeconds int    `json:"remainingSeconds,omitempty"`
}

// MarshalMessage encodes msg for the wire.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
