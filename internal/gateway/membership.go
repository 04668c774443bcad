// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/events"
)

// Announce registers c as userID's current connection and tells every
// other connection that userID is online.
//
// A connection authenticated by token may only announce its own subject.
// Without authentication the announced id binds the connection; announcing
// a different id later rebinds it and takes the old id offline.
func (g *Gateway) Announce(ctx context.Context, c *Client, userID string) error {
	current := c.UserID()
	if c.isVerified() || g.authMode == auth.ModeJWT {
		if current == "" || userID != current {
			return fmt.Errorf("%w: identity is bound to the authenticated user", ErrPermissionDenied)
		}
	} else {
		c.bindUser(userID)
	}

	replaced, unbound := g.presence.Register(userID, c.id)
	if unbound != "" {
		g.broadcastOffline(unbound, g.now(), "")
	}
	if replaced != "" {
		c.logger().Debug().Str("replaced_conn_id", replaced).Msg("presence moved to newer connection")
	}

	g.broadcastAll(Message{Type: EventPresenceOnline, Data: PresenceData{UserID: userID}}, c.id)
	g.publish(ctx, events.TopicPresenceChanged, events.PresenceChanged{
		UserID:       userID,
		Status:       string(PresenceOnline),
		ConnectionID: c.id,
		At:           g.now().UTC(),
	})
	return nil
}

func (g *Gateway) broadcastOffline(userID string, lastSeen time.Time, skip string) {
	ts := lastSeen.UTC()
	g.broadcastAll(Message{Type: EventPresenceOffline, Data: PresenceData{UserID: userID, LastSeen: &ts}}, skip)
	g.publish(context.Background(), events.TopicPresenceChanged, events.PresenceChanged{
		UserID: userID,
		Status: string(PresenceOffline),
		At:     ts,
	})
}

// JoinRoom adds c to a chat room. Joining twice is a no-op.
func (g *Gateway) JoinRoom(c *Client, roomID string) {
	if _, added := g.chat.Join(roomID, c.id); added {
		c.logger().Debug().Str("room_id", roomID).Msg("joined room")
	}
}

// LeaveRoom removes c from a chat room. Leaving a room c is not in is a
// no-op.
func (g *Gateway) LeaveRoom(c *Client, roomID string) {
	if _, removed := g.chat.Leave(roomID, c.id); removed {
		c.logger().Debug().Str("room_id", roomID).Msg("left room")
	}
}
