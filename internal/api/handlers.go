// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package api is the HTTP surface: the websocket upgrade, health probes,
// Prometheus metrics and a small REST API over presence, room history,
// pins and room roles.
//
// Handler methods are split across files:
//   - handlers.go: Handler, its collaborators and the upgrader
//   - handlers_websocket.go: /ws
//   - handlers_health.go: liveness and readiness
//   - handlers_presence.go: presence queries
//   - handlers_rooms.go: history, pins and role management
//   - handlers_audit.go: the audit trail query
package api

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/storage"
)

const (
	defaultHistoryLimit = 50
	handshakeTimeout    = 10 * time.Second
)

// HistoryReader reads persisted room state.
type HistoryReader interface {
	ListMessages(ctx context.Context, roomID string, limit int) ([]storage.Message, error)
	PinnedMessages(ctx context.Context, roomID string) ([]string, error)
}

// RoleManager grants and checks room roles.
type RoleManager interface {
	IsAllowed(ctx context.Context, userID, roomID, action string) (bool, error)
	GrantRole(userID, role, roomID string) (bool, error)
	RevokeRole(userID, role, roomID string) (bool, error)
	RolesInRoom(userID, roomID string) ([]string, error)
}

// AuditTrail records and queries privileged actions.
type AuditTrail interface {
	LogAuthFailure(ctx context.Context, source audit.Source, reason string)
	LogAuthzDenied(ctx context.Context, actorID, roomID, action string, source audit.Source)
	LogRoleChange(ctx context.Context, actorID, roomID, targetUserID, role string, granted bool, source audit.Source)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// StoreHealth reports storage readiness.
type StoreHealth interface {
	Healthy() bool
	State() string
}

// HandlerOptions carries the handler's collaborators. Any of them may be
// nil; the routes that need a missing one answer 503.
type HandlerOptions struct {
	Gateway       *gateway.Gateway
	History       HistoryReader
	Roles         RoleManager
	StoreHealth   StoreHealth
	Authenticator auth.Authenticator
	Audit         AuditTrail
	Config        *config.Config
}

// Handler contains dependencies for API handlers.
type Handler struct {
	gw          *gateway.Gateway
	history     HistoryReader
	roles       RoleManager
	storeHealth StoreHealth
	authn       auth.Authenticator
	audit       AuditTrail
	config      *config.Config
	startTime   time.Time
}

// NewHandler creates the API handler.
func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		gw:          opts.Gateway,
		history:     opts.History,
		roles:       opts.Roles,
		storeHealth: opts.StoreHealth,
		authn:       opts.Authenticator,
		audit:       opts.Audit,
		config:      opts.Config,
		startTime:   time.Now(),
	}
}

func (h *Handler) historyLimit() int {
	if h.config != nil && h.config.Storage.HistoryPageLimit > 0 {
		return h.config.Storage.HistoryPageLimit
	}
	return defaultHistoryLimit
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: handshakeTimeout,
	}
}

// checkWebSocketOrigin allows every origin when none are configured or "*"
// is listed. Otherwise the Origin header must match an entry; requests
// without one are rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	if h.config == nil {
		return true
	}
	allowed := h.config.Gateway.AllowedOrigins
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	if slices.Contains(allowed, origin) {
		return true
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected from unauthorized origin")
	return false
}
