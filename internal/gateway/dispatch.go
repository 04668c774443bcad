// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/huddle/internal/metrics"
	"github.com/tomtom215/huddle/internal/validation"
)

// HandleFrame decodes one inbound frame from c and runs it to completion.
// Failures are answered with an error event; relay misses are not.
func (g *Gateway) HandleFrame(ctx context.Context, c *Client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		metrics.WSErrors.WithLabelValues("malformed").Inc()
		g.replyError(c, "", malformed(errors.New("frame must be {\"type\", \"data\"}")))
		return
	}

	if wait, ok := c.allow(); !ok {
		metrics.WSErrors.WithLabelValues("flood").Inc()
		g.replyError(c, env.Type, &RateLimitedError{Remaining: wait})
		return
	}

	if err := g.dispatch(ctx, c, env); err != nil {
		g.handleError(c, env.Type, err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *Client, env envelope) error {
	switch env.Type {
	case EventPing:
		g.deliver(c, Message{Type: EventPong})
		return nil

	case EventIdentityAnnounce:
		p, err := decode[IdentityPayload](env.Data)
		if err != nil {
			return err
		}
		return g.Announce(ctx, c, p.UserID)

	case EventRoomJoin:
		p, err := decode[RoomPayload](env.Data)
		if err != nil {
			return err
		}
		g.JoinRoom(c, p.RoomID)
		return nil

	case EventRoomLeave:
		p, err := decode[RoomPayload](env.Data)
		if err != nil {
			return err
		}
		g.LeaveRoom(c, p.RoomID)
		return nil

	case EventMessageSend:
		p, err := decode[SendPayload](env.Data)
		if err != nil {
			return err
		}
		_, err = g.SendMessage(ctx, c, p)
		return err

	case EventMessageDelivered:
		p, err := decode[StatusPayload](env.Data)
		if err != nil {
			return err
		}
		g.MarkDelivered(ctx, c, p.MessageID, p.RoomID)
		return nil

	case EventMessageRead:
		p, err := decode[StatusPayload](env.Data)
		if err != nil {
			return err
		}
		return g.MarkRead(ctx, c, p.MessageID, p.RoomID)

	case EventTypingStart, EventTypingStop:
		p, err := decode[TypingPayload](env.Data)
		if err != nil {
			return err
		}
		return g.SetTyping(c, p.RoomID, env.Type == EventTypingStart)

	case EventMessagePin:
		p, err := decode[PinPayload](env.Data)
		if err != nil {
			return err
		}
		return g.SetPin(ctx, c, p.RoomID, p.MessageID, p.Action)

	case EventCallJoin:
		p, err := decode[CallJoinPayload](env.Data)
		if err != nil {
			return err
		}
		return g.JoinCall(c, p.RoomID)

	case EventCallSignal:
		p, err := decode[SignalPayload](env.Data)
		if err != nil {
			return err
		}
		return g.RelaySignal(c, p.ToConnectionID, p.Payload)

	case EventCallLeave:
		p, err := decode[RoomPayload](env.Data)
		if err != nil {
			return err
		}
		g.LeaveCall(c, p.RoomID)
		return nil

	case EventCallEnd:
		p, err := decode[RoomPayload](env.Data)
		if err != nil {
			return err
		}
		return g.EndCall(ctx, c, p.RoomID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// decode unmarshals and validates a payload. Nothing is applied unless
// both succeed.
func decode[T any](raw json.RawMessage) (T, error) {
	var p T
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, malformed(err)
	}
	if verr := validation.ValidateStruct(&p); verr != nil {
		return p, malformed(verr)
	}
	return p, nil
}

func (g *Gateway) handleError(c *Client, event string, err error) {
	log := c.logger()
	switch {
	case errors.Is(err, ErrRelayTargetUnavailable):
		log.Debug().Err(err).Str("event", event).Msg("signal dropped")
		return
	case errors.Is(err, ErrPersistenceFailure):
		log.Error().Err(err).Str("event", event).Msg("persistence failed")
	case errors.Is(err, ErrRateLimited):
		log.Debug().Str("event", event).Msg("rate limited")
	case errors.Is(err, ErrPermissionDenied):
		log.Info().Err(err).Str("event", event).Msg("permission denied")
	default:
		log.Debug().Err(err).Str("event", event).Msg("event rejected")
	}
	g.replyError(c, event, err)
}

func (g *Gateway) replyError(c *Client, event string, err error) {
	code, message := errorCode(err)
	data := ErrorData{Code: code, Message: message, Event: event}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		data.RemainingSeconds = rl.RemainingSeconds()
	}
	g.deliver(c, Message{Type: EventError, Data: data})
}
