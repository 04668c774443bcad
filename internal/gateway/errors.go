// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrRateLimited is matched by every *RateLimitedError.
	ErrRateLimited = errors.New("rate limited")

	// ErrPersistenceFailure wraps storage errors surfaced to the sender.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrPermissionDenied is returned for privileged actions the caller
	// may not perform.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRelayTargetUnavailable means the signal target is gone. It is
	// never reported to the client.
	ErrRelayTargetUnavailable = errors.New("relay target unavailable")

	// ErrMalformedPayload is returned for frames rejected at the boundary.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrIdentityRequired is returned when an event needs a bound user.
	ErrIdentityRequired = errors.New("identity required")

	// ErrUnknownEvent is returned for unrecognised event names.
	ErrUnknownEvent = errors.New("unknown event")
)

// Error codes carried by the "error" event.
const (
	CodeRateLimited        = "rate_limited"
	CodePersistenceFailure = "persistence_failure"
	CodePermissionDenied   = "permission_denied"
	CodeMalformedPayload   = "malformed_payload"
	CodeIdentityRequired   = "identity_required"
	CodeUnknownEvent       = "unknown_event"
	CodeInternal           = "internal"
)

// RateLimitedError reports how long the sender must wait.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry in %ds", e.RemainingSeconds())
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RemainingSeconds rounds the wait up to whole seconds.
func (e *RateLimitedError) RemainingSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// malformed wraps cause as ErrMalformedPayload.
func malformed(cause error) error {
	return fmt.Errorf("%w: %w", ErrMalformedPayload, cause)
}

// persistenceFailure wraps cause as ErrPersistenceFailure.
func persistenceFailure(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistenceFailure, op, cause)
}

// errorCode maps an error to its wire code and a client-safe message.
// Storage causes are not exposed.
func errorCode(err error) (code, message string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited, err.Error()
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure, "change could not be saved, retry"
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied, err.Error()
	case errors.Is(err, ErrMalformedPayload):
		return CodeMalformedPayload, err.Error()
	case errors.Is(err, ErrIdentityRequired):
		return CodeIdentityRequired, "announce identity first"
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent, err.Error()
	default:
		return CodeInternal, "internal error"
	}
}
