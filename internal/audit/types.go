// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package audit records privileged and security-relevant actions: failed
// authentication, denied permission checks, room role changes, pins and
// ended calls.
//
// Events are written asynchronously through Logger to a Store. MemoryStore
// keeps a bounded ring for development; BadgerStore shares the message
// database and survives restarts. Retention runs as a supervised service.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned by Store.Get for an unknown id.
var ErrNotFound = errors.New("audit event not found")

// EventType categorizes audit events.
type EventType string

const (
	EventTypeAuthFailure EventType = "auth.failure"
	EventTypeAuthzDenied EventType = "authz.denied"

	EventTypeRoleGranted EventType = "role.granted"
	EventTypeRoleRevoked EventType = "role.revoked"

	EventTypeMessagePinned   EventType = "message.pinned"
	EventTypeMessageUnpinned EventType = "message.unpinned"
	EventTypeCallEnded       EventType = "call.ended"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether an action succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Outcome   Outcome   `json:"outcome"`
	Actor     Actor     `json:"actor"`

	// RoomID is empty for events not scoped to a room.
	RoomID string `json:"room_id,omitempty"`

	// Target of the action: a user for role changes, a message for pins.
	Target *Target `json:"target,omitempty"`

	Source      Source          `json:"source"`
	Action      string          `json:"action"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
}

// Actor is who performed the action. ID is empty for unauthenticated
// requests.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Target is the object of an action.
type Target struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Source is where the action came from. ConnectionID is set for actions
// taken over a websocket.
type Source struct {
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Get(ctx context.Context, id string) (*Event, error)

	// Query returns matching events, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than olderThan and reports how many.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter selects audit events. Zero fields match everything.
type QueryFilter struct {
	Types     []EventType `json:"types,omitempty"`
	Outcomes  []Outcome   `json:"outcomes,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	RoomID    string      `json:"room_id,omitempty"`
	TargetID  string      `json:"target_id,omitempty"`
	StartTime *time.Time  `json:"start_time,omitempty"`
	EndTime   *time.Time  `json:"end_time,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

// DefaultQueryFilter returns the filter used when a caller passes none.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}

// Matches reports whether event satisfies every criterion of f.
func (f *QueryFilter) Matches(event *Event) bool {
	if len(f.Types) > 0 && !contains(f.Types, event.Type) {
		return false
	}
	if len(f.Outcomes) > 0 && !contains(f.Outcomes, event.Outcome) {
		return false
	}
	if f.ActorID != "" && event.Actor.ID != f.ActorID {
		return false
	}
	if f.RoomID != "" && event.RoomID != f.RoomID {
		return false
	}
	if f.TargetID != "" && (event.Target == nil || event.Target.ID != f.TargetID) {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
