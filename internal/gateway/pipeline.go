// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"context"
	"time"

	"github.com/tomtom215/huddle/internal/events"
	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/storage"
)

const defaultMessageType = "text"

// SendMessage runs the send pipeline for one message from c:
//
//  1. slow-mode check; a rejection changes nothing
//  2. persist; a failure is reported to the sender only
//  3. record the send, move the room's last-message pointer and broadcast
//     message:new to the room including the sender
//
// The sender is always c's bound identity; p.SenderID is ignored.
func (g *Gateway) SendMessage(ctx context.Context, c *Client, p SendPayload) (storage.Message, error) {
	start := time.Now()

	userID, err := c.requireUser()
	if err != nil {
		metrics.RecordMessageRejected(CodeIdentityRequired)
		return storage.Message{}, err
	}

	interval := max(time.Duration(p.SlowModeSeconds)*time.Second, g.cfg.MinSlowMode)
	now, err := g.slow.Check(p.RoomID, userID, interval)
	if err != nil {
		metrics.RecordMessageRejected(CodeRateLimited)
		return storage.Message{}, err
	}

	msgType := p.Type
	if msgType == "" {
		msgType = defaultMessageType
	}

	pctx, cancel := g.persistContext(ctx)
	defer cancel()

	saved, err := g.store.SaveMessage(pctx, storage.Message{
		RoomID:          p.RoomID,
		SenderID:        userID,
		Content:         p.Content,
		Type:            msgType,
		ClientTimestamp: p.ClientTimestamp,
	})
	if err != nil {
		metrics.RecordMessageRejected(CodePersistenceFailure)
		return storage.Message{}, persistenceFailure("save message", err)
	}

	g.slow.Commit(p.RoomID, userID, now)

	if err := g.store.SetLastMessage(pctx, p.RoomID, saved.ID); err != nil {
		c.logger().Warn().Err(err).Str("room_id", p.RoomID).Str("message_id", saved.ID).
			Msg("failed to update last message pointer")
	}

	msg := Message{Type: EventMessageNew, Data: saved}
	g.broadcastRoom(g.chat, p.RoomID, msg, "")
	if !g.chat.Contains(p.RoomID, c.id) {
		g.deliver(c, msg)
	}

	g.publish(ctx, events.TopicMessageCreated, saved)
	metrics.RecordMessageAccepted(time.Since(start))
	return saved, nil
}

// MarkDelivered broadcasts a delivered status to the room and then records
// it. Neither the message nor its current status is checked first.
func (g *Gateway) MarkDelivered(ctx context.Context, c *Client, messageID, roomID string) {
	at := g.now().UTC()
	g.broadcastRoom(g.chat, roomID, Message{Type: EventMessageStatus, Data: MessageStatusData{
		MessageID: messageID,
		RoomID:    roomID,
		Status:    storage.StatusDelivered,
	}}, "")
	metrics.StatusBroadcasts.WithLabelValues(string(storage.StatusDelivered)).Inc()

	g.persistStatus(ctx, c, roomID, messageID, storage.StatusDelivered, "", at)
}

// MarkRead broadcasts a read status with the reader and time, then records
// it. The reader is c's bound identity.
func (g *Gateway) MarkRead(ctx context.Context, c *Client, messageID, roomID string) error {
	readerID, err := c.requireUser()
	if err != nil {
		return err
	}

	at := g.now().UTC()
	g.broadcastRoom(g.chat, roomID, Message{Type: EventMessageStatus, Data: MessageStatusData{
		MessageID: messageID,
		RoomID:    roomID,
		Status:    storage.StatusRead,
		ReadBy:    readerID,
		ReadAt:    &at,
	}}, "")
	metrics.StatusBroadcasts.WithLabelValues(string(storage.StatusRead)).Inc()

	g.persistStatus(ctx, c, roomID, messageID, storage.StatusRead, readerID, at)
	return nil
}

// persistStatus is best-effort; the broadcast has already happened.
func (g *Gateway) persistStatus(ctx context.Context, c *Client, roomID, messageID string, status storage.Status, readerID string, at time.Time) {
	pctx, cancel := g.persistContext(ctx)
	defer cancel()
	if err := g.store.UpdateStatus(pctx, roomID, messageID, status, readerID, at); err != nil {
		c.logger().Warn().Err(err).Str("room_id", roomID).Str("message_id", messageID).
			Str("status", string(status)).Msg("failed to persist message status")
	}
}
