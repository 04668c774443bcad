// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package client

import (
	"context"

	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/peer"
)

// HandleCallEvent feeds call events to mesh. It reports whether ev was a
// call event; other events are left to the caller.
func HandleCallEvent(ctx context.Context, mesh *peer.Mesh, ev Event) (bool, error) {
	switch ev.Type {
	case gateway.EventCallExistingUsers:
		var data gateway.ExistingUsersData
		if err := ev.Decode(&data); err != nil {
			return true, err
		}
		mesh.HandleExistingUsers(data.ConnectionIDs)
	case gateway.EventCallUserJoined:
		var data gateway.UserJoinedData
		if err := ev.Decode(&data); err != nil {
			return true, err
		}
		return true, mesh.HandleUserJoined(ctx, data.ConnectionID)
	case gateway.EventCallSignal:
		var data gateway.SignalData
		if err := ev.Decode(&data); err != nil {
			return true, err
		}
		return true, mesh.HandleSignal(ctx, data.FromConnectionID, data.Payload)
	case gateway.EventCallUserLeft:
		var data gateway.UserLeftData
		if err := ev.Decode(&data); err != nil {
			return true, err
		}
		mesh.HandleUserLeft(data.ConnectionID)
	case gateway.EventCallEnded:
		mesh.HandleEnded()
	default:
		return false, nil
	}
	return true, nil
}
