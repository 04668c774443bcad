// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	connectionIDKey  contextKey = "conn_id"
)

// GenerateCorrelationID returns the first 8 characters of a random UUID.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID attaches a correlation id to ctx.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns "" when ctx carries no correlation id.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ContextWithRequestID attaches an HTTP request id to ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns "" when ctx carries no request id.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithConnectionID attaches a gateway connection id to ctx.
// Every event handled for a connection runs under such a context.
func ContextWithConnectionID(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connectionIDKey, connID)
}

// ConnectionIDFromContext returns "" when ctx carries no connection id.
func ConnectionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(connectionIDKey).(string)
	return id
}

// Ctx returns the global logger enriched with the ids carried by ctx.
//
//	logging.Ctx(ctx).Info().Str("room_id", roomID).Msg("joined")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// CtxWith returns a logger context pre-populated with the ids carried by ctx.
func CtxWith(ctx context.Context) zerolog.Context {
	logCtx := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("request_id", id)
	}
	if id := ConnectionIDFromContext(ctx); id != "" {
		logCtx = logCtx.Str("conn_id", id)
	}
	return logCtx
}
