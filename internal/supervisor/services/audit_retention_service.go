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

// AuditPruner is satisfied by *audit.Logger.
type AuditPruner interface {
	Prune(ctx context.Context) (int64, error)
}

// AuditRetentionService deletes expired audit events on a fixed interval.
type AuditRetentionService struct {
	pruner   AuditPruner
	interval time.Duration
	name     string
}

// NewAuditRetentionService creates the service. interval defaults to 24h.
func NewAuditRetentionService(pruner AuditPruner, interval time.Duration) *AuditRetentionService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditRetentionService{
		pruner:   pruner,
		interval: interval,
		name:     "audit-retention",
	}
}

// Serve implements suture.Service. A failed prune is retried on the next
// tick.
func (s *AuditRetentionService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := s.pruner.Prune(ctx)
			if err != nil {
				logging.Error().Err(err).Str("service", s.name).Msg("audit cleanup failed")
				continue
			}
			if count > 0 {
				logging.Info().Int64("count", count).Str("service", s.name).Msg("cleaned up old audit events")
			}
		}
	}
}

func (s *AuditRetentionService) String() string {
	return s.name
}
