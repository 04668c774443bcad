// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package config

import (
	"fmt"
	"strings"
	"time"
)

var (
	validLogLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
	validAuthModes  = map[string]bool{"jwt": true, "none": true}
	validBackends   = map[string]bool{"gochannel": true, "nats": true}
	validAuditStore = map[string]bool{"memory": true, "badger": true}
)

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateGateway,
		c.validateStorage,
		c.validateBreaker,
		c.validateSecurity,
		c.validateEvents,
		c.validateAudit,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateGateway() error {
	g := c.Gateway
	if g.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1")
	}
	if g.MaxMessageSize < 1024 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 1024 bytes")
	}
	if g.WriteWait <= 0 || g.PongWait <= 0 {
		return fmt.Errorf("WS_WRITE_WAIT and WS_PONG_WAIT must be positive")
	}
	if g.EventsPerSecond < 0 {
		return fmt.Errorf("WS_EVENTS_PER_SECOND must not be negative")
	}
	if g.EventsPerSecond > 0 && g.EventBurst < 1 {
		return fmt.Errorf("WS_EVENT_BURST must be at least 1 when WS_EVENTS_PER_SECOND is set")
	}
	if g.MinSlowMode < 0 {
		return fmt.Errorf("MIN_SLOW_MODE must not be negative")
	}
	if g.MinSlowMode > maxSlowMode {
		return fmt.Errorf("MIN_SLOW_MODE must not exceed %s", maxSlowMode)
	}
	if g.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive")
	}
	return nil
}

// maxSlowMode matches the largest slowModeSeconds a client may request.
const maxSlowMode = 24 * time.Hour

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("STORAGE_PATH is required unless STORAGE_IN_MEMORY=true")
	}
	if c.Storage.GCDiscardRatio <= 0 || c.Storage.GCDiscardRatio >= 1 {
		return fmt.Errorf("STORAGE_GC_RATIO must be between 0 and 1 (exclusive)")
	}
	if c.Storage.HistoryPageLimit < 1 {
		return fmt.Errorf("HISTORY_PAGE_LIMIT must be at least 1")
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !validAuthModes[c.Security.AuthMode] {
		return fmt.Errorf("AUTH_MODE must be one of: jwt, none")
	}
	if c.Security.AuthMode == "none" && c.IsProduction() {
		return fmt.Errorf("AUTH_MODE=none is not allowed when ENVIRONMENT=production")
	}
	if c.Security.AuthMode == "jwt" {
		if err := c.validateJWTSecret(); err != nil {
			return err
		}
	}
	if c.IsProduction() && hasWildcard(c.Security.CORSOrigins) {
		return fmt.Errorf("CORS_ORIGINS must not contain '*' when ENVIRONMENT=production")
	}
	if c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_MODE is jwt")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate one with: openssl rand -base64 32")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if !validBackends[c.Events.Backend] {
		return fmt.Errorf("EVENTS_BACKEND must be one of: gochannel, nats")
	}
	if c.Events.NATSEmbedded && c.Events.Backend != "nats" {
		return fmt.Errorf("NATS_EMBEDDED requires EVENTS_BACKEND=nats")
	}
	if c.Events.NATSEmbedded && (c.Events.NATSEmbeddedPort < 1 || c.Events.NATSEmbeddedPort > 65535) {
		return fmt.Errorf("NATS_EMBEDDED_PORT must be between 1 and 65535")
	}
	if c.Events.Backend == "nats" && c.Events.NATSURL == "" && !c.Events.NATSEmbedded {
		return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if !c.Audit.Enabled {
		return nil
	}
	if !validAuditStore[c.Audit.Backend] {
		return fmt.Errorf("AUDIT_BACKEND must be one of: memory, badger")
	}
	if c.Audit.BufferSize < 1 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 1")
	}
	if c.Audit.Retention <= 0 || c.Audit.CleanupInterval <= 0 {
		return fmt.Errorf("AUDIT_RETENTION and AUDIT_CLEANUP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

func hasWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

var placeholderPatterns = []string{"REPLACE", "CHANGEME", "CHANGE_ME", "YOUR_SECRET", "PLACEHOLDER", "EXAMPLE"}

func containsPlaceholder(value string) bool {
	upper := strings.ToUpper(value)
	for _, p := range placeholderPatterns {
		if strings.Contains(upper, p) {
			return true
		}
	}
	return false
}
