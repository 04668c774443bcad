// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import "net/http"

// PresenceList returns every online user.
//
// @Summary List online users
// @Tags Presence
// @Success 200 {object} APIResponse{data=[]gateway.PresenceInfo}
// @Router /presence [get]
func (h *Handler) PresenceList(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		NewResponseWriter(w, r).ServiceUnavailable("gateway unavailable")
		return
	}
	online := h.gw.Presence().Online()
	NewResponseWriter(w, r).SuccessWithCount(online, len(online))
}

// PresenceGet returns one user's presence. Unknown users are reported
// offline rather than 404, since presence is advisory.
//
// @Summary Get a user's presence
// @Tags Presence
// @Param userID path string true "User ID"
// @Success 200 {object} APIResponse{data=gateway.PresenceInfo}
// @Router /presence/{userID} [get]
func (h *Handler) PresenceGet(w http.ResponseWriter, r *http.Request) {
	if h.gw == nil {
		NewResponseWriter(w, r).ServiceUnavailable("gateway unavailable")
		return
	}
	userID, ok := pathID(w, r, "userID", "userid")
	if !ok {
		return
	}
	NewResponseWriter(w, r).Success(h.gw.Presence().Lookup(userID))
}
