// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package api

import (
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/logging"
)

// RoomMessages returns the newest messages of a room, oldest first.
// limit defaults to and is capped at the configured history page size.
//
// @Summary Room history
// @Tags Rooms
// @Param roomID path string true "Room ID"
// @Param limit query int false "Maximum messages"
// @Success 200 {object} APIResponse{data=[]storage.Message}
// @Router /rooms/{roomID}/messages [get]
func (h *Handler) RoomMessages(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		NewResponseWriter(w, r).ServiceUnavailable("storage unavailable")
		return
	}
	roomID, ok := pathID(w, r, "roomID", "roomid")
	if !ok {
		return
	}

	maxLimit := h.historyLimit()
	limit := getIntParam(r, "limit", maxLimit)
	if limit < 1 || limit > maxLimit {
		limit = maxLimit
	}

	msgs, err := h.history.ListMessages(r.Context(), roomID, limit)
	if err != nil {
		h.storageFailure(w, r, err)
		return
	}
	NewResponseWriter(w, r).SuccessWithCount(msgs, len(msgs))
}

// RoomPins returns the pinned message ids of a room.
//
// @Summary Pinned messages
// @Tags Rooms
// @Param roomID path string true "Room ID"
// @Success 200 {object} APIResponse{data=[]string}
// @Router /rooms/{roomID}/pins [get]
func (h *Handler) RoomPins(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		NewResponseWriter(w, r).ServiceUnavailable("storage unavailable")
		return
	}
	roomID, ok := pathID(w, r, "roomID", "roomid")
	if !ok {
		return
	}

	pins, err := h.history.PinnedMessages(r.Context(), roomID)
	if err != nil {
		h.storageFailure(w, r, err)
		return
	}
	NewResponseWriter(w, r).SuccessWithCount(pins, len(pins))
}

// RoleAssignment is the result of a role change.
type RoleAssignment struct {
	RoomID  string   `json:"roomId"`
	UserID  string   `json:"userId"`
	Role    string   `json:"role,omitempty"`
	Changed bool     `json:"changed"`
	Roles   []string `json:"roles"`
}

// RoomRoles lists the roles a user holds in a room.
//
// @Summary User roles in a room
// @Tags Rooms
// @Router /rooms/{roomID}/roles/{userID} [get]
func (h *Handler) RoomRoles(w http.ResponseWriter, r *http.Request) {
	if h.roles == nil {
		NewResponseWriter(w, r).ServiceUnavailable("authorization unavailable")
		return
	}
	roomID, ok := pathID(w, r, "roomID", "roomid")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID", "userid")
	if !ok {
		return
	}

	roles, err := h.roles.RolesInRoom(userID, roomID)
	if err != nil {
		NewResponseWriter(w, r).InternalError("failed to list roles")
		return
	}
	NewResponseWriter(w, r).Success(RoleAssignment{RoomID: roomID, UserID: userID, Roles: roles})
}

// GrantRoomRole gives a user a room role. The caller needs roles.manage in
// the room.
//
// @Summary Grant a room role
// @Tags Rooms
// @Router /rooms/{roomID}/roles/{userID}/{role} [put]
func (h *Handler) GrantRoomRole(w http.ResponseWriter, r *http.Request) {
	h.changeRoomRole(w, r, true)
}

// RevokeRoomRole removes a room role from a user. The caller needs
// roles.manage in the room.
//
// @Summary Revoke a room role
// @Tags Rooms
// @Router /rooms/{roomID}/roles/{userID}/{role} [delete]
func (h *Handler) RevokeRoomRole(w http.ResponseWriter, r *http.Request) {
	h.changeRoomRole(w, r, false)
}

func (h *Handler) changeRoomRole(w http.ResponseWriter, r *http.Request, grant bool) {
	rw := NewResponseWriter(w, r)
	if h.roles == nil {
		rw.ServiceUnavailable("authorization unavailable")
		return
	}
	roomID, ok := pathID(w, r, "roomID", "roomid")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID", "userid")
	if !ok {
		return
	}
	role, ok := pathID(w, r, "role", "oneof=owner moderator")
	if !ok {
		return
	}

	caller, _ := auth.IdentityFromContext(r.Context())
	allowed, err := h.roles.IsAllowed(r.Context(), caller.UserID, roomID, authz.ActionManageRoles)
	if err != nil || !allowed {
		if h.audit != nil {
			h.audit.LogAuthzDenied(r.Context(), caller.UserID, roomID, authz.ActionManageRoles, audit.SourceFromRequest(r))
		}
		rw.Forbidden("roles.manage required in room " + roomID)
		return
	}

	var changed bool
	if grant {
		changed, err = h.roles.GrantRole(userID, role, roomID)
	} else {
		changed, err = h.roles.RevokeRole(userID, role, roomID)
	}
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("room_id", roomID).Str("user_id", userID).
			Str("role", role).Msg("role change failed")
		rw.InternalError("role change failed")
		return
	}

	if changed && h.audit != nil {
		h.audit.LogRoleChange(r.Context(), caller.UserID, roomID, userID, role, grant, audit.SourceFromRequest(r))
	}

	roles, err := h.roles.RolesInRoom(userID, roomID)
	if err != nil {
		roles = nil
	}
	logging.Ctx(r.Context()).Info().Str("room_id", roomID).Str("user_id", userID).Str("role", role).
		Bool("grant", grant).Bool("changed", changed).Str("by", caller.UserID).Msg("room role changed")
	rw.Success(RoleAssignment{RoomID: roomID, UserID: userID, Role: role, Changed: changed, Roles: roles})
}

// storageFailure answers 503 while the storage breaker is open and 500
// for any other storage error.
func (h *Handler) storageFailure(w http.ResponseWriter, r *http.Request, err error) {
	rw := NewResponseWriter(w, r)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rw.ServiceUnavailable("storage temporarily unavailable")
		return
	}
	rw.StorageError(err)
}
