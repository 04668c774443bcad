// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package services

import (
	"context"
	"time"

	"github.com/tomtom215/huddle/internal/logging"
)

// ValueLogCollector is satisfied by *storage.BadgerStore.
type ValueLogCollector interface {
	RunGC(discardRatio float64) error
}

// StorageGCService runs value log garbage collection on a fixed interval.
// GC errors are logged and retried on the next tick; they never stop the
// service.
type StorageGCService struct {
	store        ValueLogCollector
	interval     time.Duration
	discardRatio float64
	name         string
}

// NewStorageGCService creates the service. interval defaults to 10m and
// discardRatio to 0.5.
func NewStorageGCService(store ValueLogCollector, interval time.Duration, discardRatio float64) *StorageGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &StorageGCService{
		store:        store,
		interval:     interval,
		discardRatio: discardRatio,
		name:         "storage-gc",
	}
}

// Serve implements suture.Service.
func (s *StorageGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.store.RunGC(s.discardRatio); err != nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("value log GC failed")
				continue
			}
			logging.Debug().Str("service", s.name).Dur("duration", time.Since(start)).Msg("value log GC complete")
		}
	}
}

func (s *StorageGCService) String() string {
	return s.name
}
