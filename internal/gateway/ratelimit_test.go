// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"errors"
	"testing"
	"time"
)

func TestSlowMode_Check(t *testing.T) {
	tests := []struct {
		name          string
		lastAgo       time.Duration
		committed     bool
		interval      time.Duration
		wantRemaining int
	}{
		{name: "no previous send", interval: 10 * time.Second},
		{name: "zero interval", committed: true, interval: 0},
		{name: "inside window", committed: true, lastAgo: 3 * time.Second, interval: 10 * time.Second, wantRemaining: 7},
		{name: "rounds up", committed: true, lastAgo: 2500 * time.Millisecond, interval: 10 * time.Second, wantRemaining: 8},
		{name: "exactly at boundary", committed: true, lastAgo: 10 * time.Second, interval: 10 * time.Second},
		{name: "past window", committed: true, lastAgo: 11 * time.Second, interval: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{now: t0}
			s := NewSlowMode(clock.Now)
			if tt.committed {
				s.Commit("r", "alice", t0)
			}
			clock.Advance(tt.lastAgo)

			_, err := s.Check("r", "alice", tt.interval)
			if tt.wantRemaining == 0 {
				if err != nil {
					t.Fatalf("Check() = %v, want nil", err)
				}
				return
			}
			var rl *RateLimitedError
			if !errors.As(err, &rl) {
				t.Fatalf("Check() = %v, want *RateLimitedError", err)
			}
			if !errors.Is(err, ErrRateLimited) {
				t.Error("error should match ErrRateLimited")
			}
			if rl.RemainingSeconds() != tt.wantRemaining {
				t.Errorf("RemainingSeconds() = %d, want %d", rl.RemainingSeconds(), tt.wantRemaining)
			}
		})
	}
}

func TestSlowMode_KeyedPerRoomAndUser(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := NewSlowMode(clock.Now)
	s.Commit("r1", "alice", t0)

	for _, k := range [][2]string{{"r2", "alice"}, {"r1", "bob"}} {
		if _, err := s.Check(k[0], k[1], time.Minute); err != nil {
			t.Errorf("Check(%s, %s) = %v, want nil", k[0], k[1], err)
		}
	}
	if _, err := s.Check("r1", "alice", time.Minute); err == nil {
		t.Error("Check(r1, alice) should be limited")
	}
}

func TestSlowMode_CheckDoesNotRecord(t *testing.T) {
	s := NewSlowMode(nil)
	if _, err := s.Check("r", "alice", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LastSend("r", "alice"); ok {
		t.Error("Check must not record a send")
	}
}

func TestSlowMode_Prune(t *testing.T) {
	clock := &fakeClock{now: t0}
	s := NewSlowMode(clock.Now)
	s.Commit("r", "old", t0)
	clock.Advance(MaxSlowMode)
	s.Commit("r", "new", clock.Now())

	if n := s.Prune(MaxSlowMode); n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
	if _, ok := s.LastSend("r", "new"); !ok {
		t.Error("recent entry was pruned")
	}
}
