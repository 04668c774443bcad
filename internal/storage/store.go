// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package storage persists chat messages, per-room last-message pointers
// and pinned-message sets.
//
// The gateway treats storage as the owner of canonical message state: ids
// and timestamps are assigned here, never by clients. BadgerStore is the
// production implementation; BreakerStore wraps any Store with a circuit
// breaker so a failing disk turns into fast PersistenceFailure replies
// instead of piling up blocked sends.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a message or room pointer does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: closed")
)

// Status is a message delivery status.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return s.rank() > 0 }

// Message is the canonical stored copy of a chat message.
type Message struct {
	ID              string     `json:"id"`
	RoomID          string     `json:"roomId"`
	SenderID        string     `json:"senderId"`
	Content         string     `json:"content"`
	Type            string     `json:"type"`
	ClientTimestamp int64      `json:"clientTimestamp,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
	Status          Status     `json:"status"`
	ReadBy          []string   `json:"readBy,omitempty"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
}

// Store is the full storage surface.
type Store interface {
	// SaveMessage assigns ID, Timestamp and Status=sent and persists msg.
	SaveMessage(ctx context.Context, msg Message) (Message, error)

	// SetLastMessage points roomID's last-message pointer at messageID.
	SetLastMessage(ctx context.Context, roomID, messageID string) error

	// LastMessage returns the message roomID's pointer refers to.
	LastMessage(ctx context.Context, roomID string) (Message, error)

	// ListMessages returns up to limit of the newest messages, oldest first.
	ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error)

	// PinMessage and UnpinMessage mutate the room's pinned set idempotently
	// and return the resulting set.
	PinMessage(ctx context.Context, roomID, messageID string) ([]string, error)
	UnpinMessage(ctx context.Context, roomID, messageID string) ([]string, error)
	PinnedMessages(ctx context.Context, roomID string) ([]string, error)

	// UpdateStatus advances a message's status. Regressions and unknown
	// messages are ignored without error.
	UpdateStatus(ctx context.Context, roomID, messageID string, status Status, readerID string, at time.Time) error

	Close() error
}
