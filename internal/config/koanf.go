// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/huddle/config.yaml",
	"/etc/huddle/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8460,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Gateway: GatewayConfig{
			SendBuffer:      256,
			MaxMessageSize:  64 * 1024,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			EventsPerSecond: 20,
			EventBurst:      40,
			MinSlowMode:     0,
			PersistTimeout:  5 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Storage: StorageConfig{
			Path:             "/data/huddle",
			InMemory:         false,
			GCInterval:       10 * time.Minute,
			GCDiscardRatio:   0.5,
			HistoryPageLimit: 100,
		},
		Breaker: BreakerConfig{
			Name:             "storage",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Security: SecurityConfig{
			AuthMode:        "jwt",
			JWTIssuer:       "huddle",
			TokenTTL:        24 * time.Hour,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Authz: AuthzConfig{
			CacheEnabled: true,
			CacheTTL:     time.Minute,
			DefaultRole:  "member",
		},
		Events: EventsConfig{
			Enabled:          true,
			Backend:          "gochannel",
			NATSURL:          "nats://127.0.0.1:4222",
			TopicPrefix:      "huddle",
			NATSEmbeddedPort: 4222,
		},
		Audit: AuditConfig{
			Enabled:         true,
			Backend:         "badger",
			MaxEvents:       10000,
			Retention:       90 * 24 * time.Hour,
			CleanupInterval: 24 * time.Hour,
			BufferSize:      1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf merges defaults, the config file and the environment, then validates.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"gateway.allowed_origins",
	"security.cors_origins",
	"security.admins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_host":        "server.host",
	"http_port":        "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	"ws_send_buffer":       "gateway.send_buffer",
	"ws_max_message_size":  "gateway.max_message_size",
	"ws_write_wait":        "gateway.write_wait",
	"ws_pong_wait":         "gateway.pong_wait",
	"ws_events_per_second": "gateway.events_per_second",
	"ws_event_burst":       "gateway.event_burst",
	"ws_allowed_origins":   "gateway.allowed_origins",
	"min_slow_mode":        "gateway.min_slow_mode",
	"persist_timeout":      "gateway.persist_timeout",

	"storage_path":        "storage.path",
	"storage_in_memory":   "storage.in_memory",
	"storage_gc_interval": "storage.gc_interval",
	"storage_gc_ratio":    "storage.gc_discard_ratio",
	"history_page_limit":  "storage.history_page_limit",

	"breaker_max_requests":      "breaker.max_requests",
	"breaker_interval":          "breaker.interval",
	"breaker_timeout":           "breaker.timeout",
	"breaker_failure_threshold": "breaker.failure_threshold",

	"auth_mode":         "security.auth_mode",
	"jwt_secret":        "security.jwt_secret",
	"jwt_issuer":        "security.jwt_issuer",
	"token_ttl":         "security.token_ttl",
	"cors_origins":      "security.cors_origins",
	"rate_limit_reqs":   "security.rate_limit_requests",
	"rate_limit_window": "security.rate_limit_window",
	"admin_users":       "security.admins",

	"authz_cache_enabled": "authz.cache_enabled",
	"authz_cache_ttl":     "authz.cache_ttl",
	"authz_default_role":  "authz.default_role",

	"events_enabled":      "events.enabled",
	"events_backend":      "events.backend",
	"nats_url":            "events.nats_url",
	"events_topic_prefix": "events.topic_prefix",
	"nats_embedded":       "events.nats_embedded",
	"nats_embedded_port":  "events.nats_embedded_port",

	"audit_enabled":          "audit.enabled",
	"audit_backend":          "audit.backend",
	"audit_max_events":       "audit.max_events",
	"audit_retention":        "audit.retention",
	"audit_cleanup_interval": "audit.cleanup_interval",
	"audit_buffer_size":      "audit.buffer_size",
	"audit_log_to_stdout":    "audit.log_to_stdout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path.
//
//	HTTP_PORT  -> server.port
//	JWT_SECRET -> security.jwt_secret
//	NATS_URL   -> events.nats_url
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
