// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"net/http"
	"strings"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/logging"
)

const maxAuditLimit = 1000

// AuditEvents returns audit events, newest first. Only global
// administrators may read the trail.
//
// @Summary Query the audit trail
// @Tags Audit
// @Param type query string false "Comma-separated event types"
// @Param room query string false "Room ID"
// @Param actor query string false "Actor user ID"
// @Param limit query int false "Maximum events (default 100, max 1000)"
// @Success 200 {object} APIResponse{data=[]audit.Event}
// @Failure 403 {object} APIResponse "audit.read required"
// @Router /audit [get]
func (h *Handler) AuditEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.audit == nil || h.roles == nil {
		rw.ServiceUnavailable("audit trail unavailable")
		return
	}

	caller, _ := auth.IdentityFromContext(r.Context())
	allowed, err := h.roles.IsAllowed(r.Context(), caller.UserID, authz.ScopeGlobal, authz.ActionReadAudit)
	if err != nil || !allowed {
		rw.Forbidden("audit.read required")
		return
	}

	filter := audit.DefaultQueryFilter()
	q := r.URL.Query()
	if types := q.Get("type"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, audit.EventType(t))
			}
		}
	}
	filter.RoomID = q.Get("room")
	filter.ActorID = q.Get("actor")
	if limit := getIntParam(r, "limit", filter.Limit); limit > 0 {
		filter.Limit = min(limit, maxAuditLimit)
	}

	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("audit query failed")
		rw.InternalError("audit query failed")
		return
	}
	rw.SuccessWithCount(events, len(events))
}
