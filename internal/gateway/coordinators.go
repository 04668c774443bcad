// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"fmt"

	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/events"
	"github.com/tomtom215/huddle/internal/metrics"
)

// SetTyping broadcasts typing:status to the room, excluding c.
func (g *Gateway) SetTyping(c *Client, roomID string, isTyping bool) error {
	userID, err := c.requireUser()
	if err != nil {
		return err
	}
	g.broadcastRoom(g.chat, roomID, Message{Type: EventTypingStatus, Data: TypingStatusData{
		RoomID:   roomID,
		UserID:   userID,
		IsTyping: isTyping,
	}}, c.id)
	return nil
}

// SetPin pins or unpins messageID in roomID on behalf of c's user.
//
// The broadcast goes out even when the set did not change; clients use it
// to refresh rather than to detect change. The requester gets the same
// room:update directly, whether or not it has joined the room.
func (g *Gateway) SetPin(ctx context.Context, c *Client, roomID, messageID, action string) error {
	userID, err := c.requireUser()
	if err != nil {
		return err
	}

	permAction := authz.ActionPin
	if action == PinActionUnpin {
		permAction = authz.ActionUnpin
	}
	if err := g.authorize(ctx, c, userID, roomID, permAction); err != nil {
		metrics.PinUpdates.WithLabelValues(action, "denied").Inc()
		return err
	}

	pctx, cancel := g.persistContext(ctx)
	defer cancel()

	var pins []string
	if action == PinActionUnpin {
		pins, err = g.store.UnpinMessage(pctx, roomID, messageID)
	} else {
		pins, err = g.store.PinMessage(pctx, roomID, messageID)
	}
	if err != nil {
		metrics.PinUpdates.WithLabelValues(action, "failed").Inc()
		return persistenceFailure(action+" message", err)
	}
	metrics.PinUpdates.WithLabelValues(action, "applied").Inc()
	g.recordAction(ctx, c, userID, roomID, permAction, messageID)

	update := Message{Type: EventRoomUpdate, Data: RoomUpdateData{
		Type:           RoomUpdatePinType,
		RoomID:         roomID,
		MessageID:      messageID,
		Action:         action,
		PinnedMessages: pins,
	}}
	g.broadcastRoom(g.chat, roomID, update, c.id)
	g.deliver(c, update)

	g.publish(ctx, events.TopicMessagePinned, events.PinChanged{
		RoomID:         roomID,
		MessageID:      messageID,
		Action:         action,
		UserID:         userID,
		PinnedMessages: pins,
	})
	return nil
}

// authorize asks the permission resolver. A resolver error or a missing
// resolver denies. Denials are audited.
func (g *Gateway) authorize(ctx context.Context, c *Client, userID, roomID, action string) error {
	if g.perms == nil {
		g.recordDenied(ctx, c, userID, roomID, action)
		return fmt.Errorf("%w: %s", ErrPermissionDenied, action)
	}
	allowed, err := g.perms.IsAllowed(ctx, userID, roomID, action)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", userID).Str("room_id", roomID).Str("action", action).
			Msg("permission check failed")
		g.recordDenied(ctx, c, userID, roomID, action)
		return fmt.Errorf("%w: %s", ErrPermissionDenied, action)
	}
	if !allowed {
		g.recordDenied(ctx, c, userID, roomID, action)
		return fmt.Errorf("%w: %s in room %s", ErrPermissionDenied, action, roomID)
	}
	return nil
}

func (g *Gateway) recordDenied(ctx context.Context, c *Client, userID, roomID, action string) {
	if g.audit != nil {
		g.audit.LogAuthzDenied(ctx, userID, roomID, action, audit.Source{ConnectionID: c.id})
	}
}

func (g *Gateway) recordAction(ctx context.Context, c *Client, userID, roomID, action, targetID string) {
	if g.audit != nil {
		g.audit.LogRoomAction(ctx, userID, roomID, action, targetID, audit.Source{ConnectionID: c.id})
	}
}
