// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package main is the entry point for the Huddle gateway.
//
// Huddle accepts websocket connections on /ws and provides presence, chat
// rooms with slow mode, typing and pin broadcasts, and a signaling relay for
// mesh WebRTC calls. Media never passes through the server.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: defaults, optional config.yaml, environment (Koanf v2)
//  2. Storage: BadgerDB behind a gobreaker circuit breaker
//  3. Audit trail (optional): privileged actions in BadgerDB or memory
//  4. Authorization: Casbin room roles (owner, moderator, admin)
//  5. Authentication: JWT bearer tokens, or trusted X-User-ID in development
//  6. Event bus (optional): Watermill over GoChannel or NATS, optionally
//     with an embedded NATS server
//  7. Gateway: presence, rooms, message pipeline, call relay
//  8. HTTP Server: /ws, REST endpoints under /api/v1, /metrics
//
// Everything long-running is a service in a suture supervisor tree.
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. Each connection receives a
// normal closure frame, in-flight requests get ServerConfig.ShutdownTimeout
// to finish, and the store is closed last.
//
// # Example Usage
//
// Development without tokens:
//
//	export AUTH_MODE=none
//	export STORAGE_IN_MEMORY=true
//	./huddle
//
// Production:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ENVIRONMENT=production
//	export CORS_ORIGINS=https://chat.example.com
//	export ADMIN_USERS=alice
//	export EVENTS_BACKEND=nats
//	export NATS_URL=nats://nats:4222
//	./huddle
//
// A single instance can run its own NATS server instead:
//
//	export EVENTS_BACKEND=nats
//	export NATS_EMBEDDED=true
//	./huddle
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/tomtom215/huddle/internal/api"
	"github.com/tomtom215/huddle/internal/audit"
	"github.com/tomtom215/huddle/internal/auth"
	"github.com/tomtom215/huddle/internal/authz"
	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/events"
	"github.com/tomtom215/huddle/internal/gateway"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/storage"
	"github.com/tomtom215/huddle/internal/supervisor"
	"github.com/tomtom215/huddle/internal/supervisor/services"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Huddle stopped with an error")
	}
}

//nolint:gocyclo // Sequential setup steps
func run() error {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("auth_mode", cfg.Security.AuthMode).
		Str("storage_path", cfg.Storage.Path).
		Bool("storage_in_memory", cfg.Storage.InMemory).
		Bool("events_enabled", cfg.Events.Enabled).
		Msg("Configuration loaded")

	if cfg.Security.AuthMode == auth.ModeNone {
		logging.Warn().Msg("AUTH_MODE=none: identities are taken from X-User-ID and identity:announce without verification")
	}

	// Storage
	badgerStore, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	store := storage.NewBreakerStore(badgerStore, cfg.Breaker)
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()
	logging.Info().Msg("Storage initialized")

	// Audit trail. Closed before storage so queued events reach badger.
	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		var auditStore audit.Store
		if cfg.Audit.Backend == "badger" && !cfg.Storage.InMemory {
			auditStore = audit.NewBadgerStore(badgerStore.DB())
		} else {
			auditStore = audit.NewMemoryStore(cfg.Audit.MaxEvents)
		}
		auditLog = audit.NewLogger(auditStore, cfg.Audit)
		defer func() {
			if err := auditLog.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing audit logger")
			}
		}()
		logging.Info().Str("backend", cfg.Audit.Backend).Msg("Audit trail initialized")
	}

	// Authorization
	enforcer, err := authz.NewEnforcer(authz.Config{
		DefaultRole:  cfg.Authz.DefaultRole,
		Admins:       cfg.Security.Admins,
		CacheEnabled: cfg.Authz.CacheEnabled,
		CacheTTL:     cfg.Authz.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("create authorization enforcer: %w", err)
	}
	defer enforcer.Close()

	// Authentication
	var jwtManager *auth.JWTManager
	if cfg.Security.AuthMode == auth.ModeJWT {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			return fmt.Errorf("create JWT manager: %w", err)
		}
	}
	authn, err := auth.NewAuthenticator(cfg.Security.AuthMode, jwtManager)
	if err != nil {
		return fmt.Errorf("create authenticator: %w", err)
	}

	// Event bus
	var bus *events.Bus
	if cfg.Events.Enabled && cfg.Events.NATSEmbedded {
		natsServer, err := events.NewEmbeddedServer(cfg.Events.NATSEmbeddedPort)
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		defer natsServer.Shutdown()
		cfg.Events.NATSURL = natsServer.ClientURL()
		logging.Info().Str("url", cfg.Events.NATSURL).Msg("Embedded NATS server started")
	}
	if cfg.Events.Enabled {
		bus, err = events.NewBus(cfg.Events, logging.NewWatermillLogger())
		if err != nil {
			return fmt.Errorf("create event bus: %w", err)
		}
		logging.Info().Str("backend", cfg.Events.Backend).Msg("Event bus initialized")
	}

	gwOpts := gateway.Options{
		Store:       store,
		Permissions: enforcer,
		AuthMode:    cfg.Security.AuthMode,
	}
	if bus != nil {
		gwOpts.Events = bus
	}
	if auditLog != nil {
		gwOpts.Audit = auditLog
	}
	gw := gateway.New(cfg.Gateway, gwOpts)

	apiOpts := api.HandlerOptions{
		Gateway:       gw,
		History:       store,
		Roles:         enforcer,
		StoreHealth:   store,
		Authenticator: authn,
		Config:        cfg,
	}
	if auditLog != nil {
		apiOpts.Audit = auditLog
	}
	handler := api.NewHandler(apiOpts)
	router := api.NewRouter(handler, authn, api.NewChiMiddlewareFromSecurity(cfg.Security))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Supervisor tree
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	if !cfg.Storage.InMemory && cfg.Storage.GCInterval > 0 {
		tree.AddDataService(services.NewStorageGCService(badgerStore, cfg.Storage.GCInterval, cfg.Storage.GCDiscardRatio))
	}
	if auditLog != nil {
		tree.AddDataService(services.NewAuditRetentionService(auditLog, cfg.Audit.CleanupInterval))
	}
	if bus != nil {
		tree.AddMessagingService(services.NewEventBusService(bus))
	}
	tree.AddMessagingService(services.NewGatewayService(gw))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("Services added to supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Huddle stopped gracefully")
	return nil
}
