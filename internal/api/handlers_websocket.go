// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"net/http"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/logging"
)

// WebSocket authenticates the request and hands the upgraded socket to the
// gateway. The token may come from the Authorization header or the token
// query parameter.
//
// @Summary Open a gateway connection
// @Tags Realtime
// @Success 101 {string} string "Switching Protocols"
// @Failure 401 {object} APIResponse "Missing or invalid token"
// @Failure 503 {object} APIResponse "Gateway not available"
// @Router /ws [get]
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil || h.authn == nil {
		NewResponseWriter(w, r).ServiceUnavailable("gateway unavailable")
		return
	}

	identity, err := h.authn.Authenticate(r)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket authentication failed")
		if h.audit != nil {
			h.audit.LogAuthFailure(r.Context(), audit.SourceFromRequest(r), err.Error())
		}
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := gateway.NewClient(h.gw, conn, identity)
	if !h.gw.Register(client) {
		_ = conn.Close()
		return
	}
	logging.Ctx(r.Context()).Debug().Str("conn_id", client.ID()).Str("user_id", identity.UserID).
		Msg("websocket upgraded")
	client.Start()
}
