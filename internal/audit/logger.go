// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
)

const writeTimeout = 5 * time.Second

// Logger buffers events and writes them to a Store from one goroutine.
// Log never blocks; events are dropped with a warning when the buffer is
// full.
type Logger struct {
	cfg       config.AuditConfig
	store     Store
	now       func() time.Time
	eventChan chan *Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewLogger starts a logger writing to store.
func NewLogger(store Store, cfg config.AuditConfig) *Logger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	l := &Logger{
		cfg:       cfg,
		store:     store,
		now:       time.Now,
		eventChan: make(chan *Event, cfg.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()
	return l
}

func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

func (l *Logger) writeEvent(event *Event) {
	if l.cfg.LogToStdout {
		if data, err := json.Marshal(event); err == nil {
			logging.Info().RawJSON("event", data).Msg("audit event")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := l.store.Save(ctx, event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).
			Msg("failed to save audit event")
	}
}

// Log queues event, filling in ID and Timestamp when unset.
func (l *Logger) Log(event *Event) {
	if event.ID == "" {
		event.ID = generateEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	select {
	case <-l.stopChan:
		return
	default:
	}

	select {
	case l.eventChan <- event:
	default:
		logging.Warn().Str("event_id", event.ID).Msg("audit event buffer full, dropping event")
	}
}

// Close stops the writer after draining queued events. It is safe to call
// more than once.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Prune deletes events older than the configured retention.
func (l *Logger) Prune(ctx context.Context) (int64, error) {
	if l.cfg.Retention <= 0 {
		return 0, nil
	}
	return l.store.Delete(ctx, l.now().Add(-l.cfg.Retention))
}

// Query returns matching events, newest first.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of matching events.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

func generateEventID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// LogAuthFailure records a rejected websocket or API authentication.
func (l *Logger) LogAuthFailure(ctx context.Context, source Source, reason string) {
	l.Log(&Event{
		Type:        EventTypeAuthFailure,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       Actor{Type: "anonymous"},
		Source:      source,
		Action:      "authenticate",
		Description: "Authentication failed: " + reason,
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogAuthzDenied records a refused privileged action.
func (l *Logger) LogAuthzDenied(ctx context.Context, actorID, roomID, action string, source Source) {
	l.Log(&Event{
		Type:        EventTypeAuthzDenied,
		Severity:    SeverityWarning,
		Outcome:     OutcomeFailure,
		Actor:       userActor(actorID),
		RoomID:      roomID,
		Source:      withConnection(ctx, source),
		Action:      action,
		Description: fmt.Sprintf("%s denied in room %s", action, roomID),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogRoleChange records a room role grant or revocation.
func (l *Logger) LogRoleChange(ctx context.Context, actorID, roomID, targetUserID, role string, granted bool, source Source) {
	eventType, verb := EventTypeRoleRevoked, "revoked"
	if granted {
		eventType, verb = EventTypeRoleGranted, "granted"
	}
	l.Log(&Event{
		Type:        eventType,
		Severity:    SeverityInfo,
		Outcome:     OutcomeSuccess,
		Actor:       userActor(actorID),
		RoomID:      roomID,
		Target:      &Target{ID: targetUserID, Type: "user"},
		Source:      source,
		Action:      authz.ActionManageRoles,
		Description: fmt.Sprintf("role %s %s to %s", role, verb, targetUserID),
		Metadata:    mustJSON(map[string]string{"role": role}),
		RequestID:   logging.RequestIDFromContext(ctx),
	})
}

// LogRoomAction records a permitted pin, unpin or call end. targetID is the
// message id for pins and empty for call ends.
func (l *Logger) LogRoomAction(ctx context.Context, actorID, roomID, action, targetID string, source Source) {
	event := &Event{
		Severity:  SeverityInfo,
		Outcome:   OutcomeSuccess,
		Actor:     userActor(actorID),
		RoomID:    roomID,
		Source:    withConnection(ctx, source),
		Action:    action,
		RequestID: logging.RequestIDFromContext(ctx),
	}
	switch action {
	case authz.ActionPin:
		event.Type = EventTypeMessagePinned
		event.Description = "pinned message " + targetID
	case authz.ActionUnpin:
		event.Type = EventTypeMessageUnpinned
		event.Description = "unpinned message " + targetID
	case authz.ActionCallEnd:
		event.Type = EventTypeCallEnded
		event.Description = "ended call in room " + roomID
	default:
		logging.Warn().Str("action", action).Msg("unknown audited room action")
		return
	}
	if targetID != "" {
		event.Target = &Target{ID: targetID, Type: "message"}
	}
	l.Log(event)
}

func userActor(id string) Actor {
	return Actor{ID: id, Type: "user"}
}

func withConnection(ctx context.Context, source Source) Source {
	if source.ConnectionID == "" {
		source.ConnectionID = logging.ConnectionIDFromContext(ctx)
	}
	return source
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

// SourceFromRequest builds a Source from an HTTP request. The first
// X-Forwarded-For hop wins over X-Real-IP and RemoteAddr.
func SourceFromRequest(r *http.Request) Source {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		ip = strings.TrimSpace(first)
	} else if xri := r.Header.Get("X-Real-IP"); xri != "" {
		ip = xri
	}

	return Source{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
