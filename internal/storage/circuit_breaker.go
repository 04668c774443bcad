// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package storage

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/huddle/internal/config"
	"github.com/tomtom215/huddle/internal/logging"
	"github.com/tomtom215/huddle/internal/metrics"
)

// BreakerStore wraps a Store with a circuit breaker. When the breaker is
// open every call fails immediately with gobreaker.ErrOpenState.
//
// ErrNotFound is an answer, not a fault, and does not count toward tripping.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

var _ Store = (*BreakerStore)(nil)

// NewBreakerStore wraps next using cfg.
func NewBreakerStore(next Store, cfg config.BreakerConfig) *BreakerStore {
	name := cfg.Name
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				logging.Warn().Str("breaker", name).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("Opening circuit")
			}
			return trip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &BreakerStore{next: next, cb: cb, name: name}
}

// State returns the breaker state as "closed", "half-open" or "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

// Healthy reports whether the breaker is closed and, if the wrapped store
// can tell, whether the store itself is usable.
func (b *BreakerStore) Healthy() bool {
	if b.cb.State() == gobreaker.StateOpen {
		return false
	}
	if h, ok := b.next.(interface{ Healthy() bool }); ok {
		return h.Healthy()
	}
	return true
}

func execute[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	switch {
	case err == nil || errors.Is(err, ErrNotFound):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}

	var zero T
	if res == nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, err
	}
	return typed, err
}

func (b *BreakerStore) SaveMessage(ctx context.Context, msg Message) (Message, error) {
	return execute(b, func() (Message, error) { return b.next.SaveMessage(ctx, msg) })
}

func (b *BreakerStore) SetLastMessage(ctx context.Context, roomID, messageID string) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.next.SetLastMessage(ctx, roomID, messageID)
	})
	return err
}

func (b *BreakerStore) LastMessage(ctx context.Context, roomID string) (Message, error) {
	return execute(b, func() (Message, error) { return b.next.LastMessage(ctx, roomID) })
}

func (b *BreakerStore) ListMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	return execute(b, func() ([]Message, error) { return b.next.ListMessages(ctx, roomID, limit) })
}

func (b *BreakerStore) PinMessage(ctx context.Context, roomID, messageID string) ([]string, error) {
	return execute(b, func() ([]string, error) { return b.next.PinMessage(ctx, roomID, messageID) })
}

func (b *BreakerStore) UnpinMessage(ctx context.Context, roomID, messageID string) ([]string, error) {
	return execute(b, func() ([]string, error) { return b.next.UnpinMessage(ctx, roomID, messageID) })
}

func (b *BreakerStore) PinnedMessages(ctx context.Context, roomID string) ([]string, error) {
	return execute(b, func() ([]string, error) { return b.next.PinnedMessages(ctx, roomID) })
}

func (b *BreakerStore) UpdateStatus(ctx context.Context, roomID, messageID string, status Status, readerID string, at time.Time) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.next.UpdateStatus(ctx, roomID, messageID, status, readerID, at)
	})
	return err
}

// Close closes the wrapped store without going through the breaker.
func (b *BreakerStore) Close() error {
	return b.next.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
