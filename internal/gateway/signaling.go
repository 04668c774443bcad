// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/events"
	"github.com/tomtom215/huddle/internal/metrics"
)

// JoinCall adds c to a voice room.
//
// Existing members get call:user-joined and are expected to send the
// offers; the joiner gets call:existing-users and waits. A connection is in
// at most one voice room, so joining another one leaves the current room
// first. Rejoining the same room repeats call:existing-users only.
func (g *Gateway) JoinCall(c *Client, roomID string) error {
	userID, err := c.requireUser()
	if err != nil {
		return err
	}

	for _, prev := range g.calls.RoomsOf(c.id) {
		if prev != roomID {
			g.LeaveCall(c, prev)
		}
	}

	existing, added := g.calls.Join(roomID, c.id)
	g.deliver(c, Message{Type: EventCallExistingUsers, Data: ExistingUsersData{
		RoomID:        roomID,
		ConnectionIDs: existing,
	}})
	if !added {
		return nil
	}

	metrics.CallEvents.WithLabelValues("join").Inc()
	g.broadcastTo(existing, Message{Type: EventCallUserJoined, Data: UserJoinedData{
		RoomID:       roomID,
		UserID:       userID,
		ConnectionID: c.id,
	}}, c.id)
	c.logger().Debug().Str("room_id", roomID).Int("existing", len(existing)).Msg("joined call")
	return nil
}

// RelaySignal forwards payload untouched to the target connection. The
// sender id comes from the connection, never from the payload. There is no
// buffering and no retry.
func (g *Gateway) RelaySignal(c *Client, toConnID string, payload json.RawMessage) error {
	target := g.client(toConnID)
	if target == nil || target == c {
		metrics.RecordSignalRelay(false)
		return fmt.Errorf("%w: %s", ErrRelayTargetUnavailable, toConnID)
	}

	ok := g.deliver(target, Message{Type: EventCallSignal, Data: SignalData{
		Payload:          payload,
		FromConnectionID: c.id,
	}})
	metrics.RecordSignalRelay(ok)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRelayTargetUnavailable, toConnID)
	}
	return nil
}

// LeaveCall removes c from a voice room and tells the remaining members.
func (g *Gateway) LeaveCall(c *Client, roomID string) {
	remaining, removed := g.calls.Leave(roomID, c.id)
	if !removed {
		return
	}
	metrics.CallEvents.WithLabelValues("leave").Inc()
	g.broadcastTo(remaining, Message{Type: EventCallUserLeft, Data: UserLeftData{
		RoomID:       roomID,
		ConnectionID: c.id,
	}}, "")
}

// EndCall sends call:ended to every member and clears the room. Only users
// allowed call.end in the room may do this.
func (g *Gateway) EndCall(ctx context.Context, c *Client, roomID string) error {
	userID, err := c.requireUser()
	if err != nil {
		return err
	}
	if err := g.authorize(ctx, c, userID, roomID, authz.ActionCallEnd); err != nil {
		return err
	}

	members := g.calls.Clear(roomID)
	g.broadcastTo(members, Message{Type: EventCallEnded, Data: CallEndedData{RoomID: roomID}}, "")
	metrics.CallEvents.WithLabelValues("end").Inc()
	g.recordAction(ctx, c, userID, roomID, authz.ActionCallEnd, "")

	g.publish(ctx, events.TopicCallEnded, events.CallEnded{
		RoomID:       roomID,
		EndedBy:      userID,
		Participants: len(members),
		At:           g.now().UTC(),
	})
	c.logger().Info().Str("room_id", roomID).Int("participants", len(members)).Msg("call ended")
	return nil
}
