// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package services

import "context"

// Runner is satisfied by *gateway.Gateway.
type Runner interface {
	RunWithContext(ctx context.Context) error
}

// GatewayService runs the gateway's lifecycle loop. When it stops, every
// connection is closed; a restart starts from empty presence and rooms.
type GatewayService struct {
	gw   Runner
	name string
}

// NewGatewayService wraps gw.
func NewGatewayService(gw Runner) *GatewayService {
	return &GatewayService{gw: gw, name: "gateway"}
}

// Serve implements suture.Service.
func (s *GatewayService) Serve(ctx context.Context) error {
	return s.gw.RunWithContext(ctx)
}

func (s *GatewayService) String() string {
	return s.name
}
