// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package config loads Huddle configuration.
//
// Configuration is layered with Koanf v2:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH or one of DefaultConfigPaths)
//  3. Environment variables, mapped by envTransformFunc
//
// Later layers override earlier ones. The merged result is validated before
// it is returned; an invalid configuration aborts startup.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Gateway    GatewayConfig    `koanf:"gateway"`
	Storage    StorageConfig    `koanf:"storage"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Security   SecurityConfig   `koanf:"security"`
	Authz      AuthzConfig      `koanf:"authz"`
	Events     EventsConfig     `koanf:"events"`
	Audit      AuditConfig      `koanf:"audit"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development or production
}

// GatewayConfig tunes the realtime connection gateway.
type GatewayConfig struct {
	// SendBuffer is the per-connection outbound queue length. A connection
	// whose queue is full is disconnected rather than stalling fan-out.
	SendBuffer int `koanf:"send_buffer"`

	// MaxMessageSize caps a single inbound frame in bytes.
	MaxMessageSize int64 `koanf:"max_message_size"`

	WriteWait time.Duration `koanf:"write_wait"`
	PongWait  time.Duration `koanf:"pong_wait"`

	// EventsPerSecond and EventBurst bound inbound events per connection.
	// Zero disables the limit.
	EventsPerSecond float64 `koanf:"events_per_second"`
	EventBurst      int     `koanf:"event_burst"`

	// MinSlowMode is a floor applied to every message:send slow mode interval.
	MinSlowMode time.Duration `koanf:"min_slow_mode"`

	// PersistTimeout bounds a single storage call in the message pipeline.
	PersistTimeout time.Duration `koanf:"persist_timeout"`

	// AllowedOrigins restricts the websocket upgrade. Empty or "*" allows all.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// StorageConfig configures the badger message store.
type StorageConfig struct {
	Path             string        `koanf:"path"`
	InMemory         bool          `koanf:"in_memory"`
	GCInterval       time.Duration `koanf:"gc_interval"`
	GCDiscardRatio   float64       `koanf:"gc_discard_ratio"`
	HistoryPageLimit int           `koanf:"history_page_limit"`
}

// BreakerConfig configures the circuit breaker around storage calls.
type BreakerConfig struct {
	Name             string        `koanf:"name"`
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
}

// SecurityConfig configures identity and the HTTP edge.
type SecurityConfig struct {
	AuthMode        string        `koanf:"auth_mode"` // jwt or none
	JWTSecret       string        `koanf:"jwt_secret"`
	JWTIssuer       string        `koanf:"jwt_issuer"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_requests"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	Admins          []string      `koanf:"admins"`
}

// AuthzConfig configures the casbin permission resolver.
type AuthzConfig struct {
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
	DefaultRole  string        `koanf:"default_role"`
}

// EventsConfig configures domain event publication.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Backend     string `koanf:"backend"` // gochannel or nats
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix"`

	// NATSEmbedded starts an in-process NATS server on 127.0.0.1 and
	// points the nats backend at it, for single-instance deployments.
	NATSEmbedded     bool `koanf:"nats_embedded"`
	NATSEmbeddedPort int  `koanf:"nats_embedded_port"`
}

// AuditConfig configures the privileged-action audit trail.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"` // memory or badger
	MaxEvents       int           `koanf:"max_events"`
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	BufferSize      int           `koanf:"buffer_size"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration from defaults, an optional file and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// IsProduction reports whether the server runs with production checks.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
