// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const embeddedReadyTimeout = 30 * time.Second

// EmbeddedServer is an in-process NATS server for single-instance
// deployments. It serves core NATS only; the publisher does not use
// JetStream.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// NewEmbeddedServer starts a NATS server on 127.0.0.1:port. A port of -1
// picks a free one.
func NewEmbeddedServer(port int) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "huddle-events",
		Host:       "127.0.0.1",
		Port:       port,
		NoSigs:     true,
		NoLog:      true,
		MaxPayload: 1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(embeddedReadyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within %s", embeddedReadyTimeout)
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Running reports whether the server accepts connections.
func (s *EmbeddedServer) Running() bool {
	return s.server.Running()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
