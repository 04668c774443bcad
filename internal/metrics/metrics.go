// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package metrics declares the Prometheus collectors exported on /metrics.
//
// Collectors are registered on the default registry at package init via
// promauto. Call sites use the Record* helpers rather than touching the
// collectors directly so label sets stay consistent.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway connection metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_websocket_connections",
			Help: "Current number of open gateway connections",
		},
	)

	WSConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_websocket_connection_duration_seconds",
			Help:    "Lifetime of gateway connections",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600, 24 * 3600},
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_websocket_messages_sent_total",
			Help: "Total number of frames written to gateway connections",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_websocket_messages_received_total",
			Help: "Total number of frames read from gateway connections",
		},
	)

	WSErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_websocket_errors_total",
			Help: "Total number of gateway connection errors",
		},
		[]string{"error_type"}, // "read", "write", "upgrade", "malformed", "flood"
	)

	WSDroppedSends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_websocket_dropped_sends_total",
			Help: "Events dropped because a recipient's send queue was full or closed",
		},
	)

	// Presence and rooms
	PresenceOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_presence_online_users",
			Help: "Users currently registered as online",
		},
	)

	RoomsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "huddle_rooms_active",
			Help: "Rooms with at least one member connection",
		},
		[]string{"kind"}, // "chat", "call"
	)

	// Message pipeline
	MessagesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_messages_accepted_total",
			Help: "Messages persisted and broadcast",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_messages_rejected_total",
			Help: "Messages rejected by the send pipeline",
		},
		[]string{"reason"}, // "rate_limited", "persistence_failure", "identity_required"
	)

	MessagePipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "huddle_message_pipeline_duration_seconds",
			Help:    "Time from message:send receipt to message:new broadcast",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
	)

	StatusBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_message_status_broadcasts_total",
			Help: "Delivery and read status broadcasts",
		},
		[]string{"status"},
	)

	PinUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_pin_updates_total",
			Help: "Pin coordinator outcomes",
		},
		[]string{"action", "result"}, // result: "applied", "denied", "failed"
	)

	// Call signaling
	SignalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_call_signals_relayed_total",
			Help: "Call signals relayed between connections",
		},
		[]string{"result"}, // "delivered", "target_unavailable"
	)

	CallEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_call_events_total",
			Help: "Call lifecycle events",
		},
		[]string{"event"}, // "join", "leave", "end"
	)

	// Storage
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_storage_operation_duration_seconds",
			Help:    "Duration of badger storage operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_storage_errors_total",
			Help: "Failed storage operations",
		},
		[]string{"operation"},
	)

	// Authorization
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_authz_decisions_total",
			Help: "Permission resolver decisions",
		},
		[]string{"action", "result"}, // result: "allowed", "denied", "error"
	)

	AuthzCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_authz_cache_hits_total",
			Help: "Permission decisions served from cache",
		},
	)

	AuthzCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "huddle_authz_cache_misses_total",
			Help: "Permission decisions evaluated by casbin",
		},
	)

	// Domain events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_events_published_total",
			Help: "Domain events handed to the event bus",
		},
		[]string{"topic", "result"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "huddle_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "huddle_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "huddle_api_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "huddle_api_active_requests",
			Help: "HTTP requests currently in flight",
		},
	)
)

// RecordMessageAccepted records a message that made it through the pipeline.
func RecordMessageAccepted(elapsed time.Duration) {
	MessagesAccepted.Inc()
	MessagePipelineDuration.Observe(elapsed.Seconds())
}

// RecordMessageRejected records a send the pipeline refused.
func RecordMessageRejected(reason string) {
	MessagesRejected.WithLabelValues(reason).Inc()
}

// RecordSignalRelay records the outcome of a single call:signal relay.
func RecordSignalRelay(delivered bool) {
	if delivered {
		SignalsRelayed.WithLabelValues("delivered").Inc()
		return
	}
	SignalsRelayed.WithLabelValues("target_unavailable").Inc()
}

// RecordStorageOperation records a storage call and its outcome.
func RecordStorageOperation(operation string, duration time.Duration, err error) {
	StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StorageErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAuthzDecision records a permission resolver decision.
func RecordAuthzDecision(action string, allowed bool, err error) {
	switch {
	case err != nil:
		AuthzDecisions.WithLabelValues(action, "error").Inc()
	case allowed:
		AuthzDecisions.WithLabelValues(action, "allowed").Inc()
	default:
		AuthzDecisions.WithLabelValues(action, "denied").Inc()
	}
}

// RecordEventPublished records a domain event publication.
func RecordEventPublished(topic string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

// RecordAPIRequest records a completed HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
