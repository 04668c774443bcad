// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package services

import "context"

// ServeCloser is satisfied by *events.Bus.
type ServeCloser interface {
	Serve(ctx context.Context) error
}

// EventBusService owns the event bus lifetime: the bus is closed when the
// messaging layer stops.
type EventBusService struct {
	bus  ServeCloser
	name string
}

// NewEventBusService wraps bus.
func NewEventBusService(bus ServeCloser) *EventBusService {
	return &EventBusService{bus: bus, name: "event-bus"}
}

// Serve implements suture.Service.
func (s *EventBusService) Serve(ctx context.Context) error {
	return s.bus.Serve(ctx)
}

func (s *EventBusService) String() string {
	return s.name
}
