// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockPruner struct {
	calls atomic.Int32
	err   error
}

func (m *mockPruner) Prune(context.Context) (int64, error) {
	m.calls.Add(1)
	return 3, m.err
}

func TestAuditRetentionService(t *testing.T) {
	for _, pruneErr := range []error{nil, errors.New("store closed")} {
		pruner := &mockPruner{err: pruneErr}
		svc := NewAuditRetentionService(pruner, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 75*time.Millisecond)
		err := svc.Serve(ctx)
		cancel()

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Serve(err=%v) = %v, want deadline exceeded", pruneErr, err)
		}
		if pruner.calls.Load() < 2 {
			t.Errorf("Prune(err=%v) calls = %d, want >= 2", pruneErr, pruner.calls.Load())
		}
	}
}

func TestNewAuditRetentionServiceDefaults(t *testing.T) {
	svc := NewAuditRetentionService(&mockPruner{}, 0)
	if svc.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h", svc.interval)
	}
	if svc.String() != "audit-retention" {
		t.Errorf("String() = %q", svc.String())
	}
}
