// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package gateway

import (
	"sync"
	"time"
)

type slowModeKey struct {
	roomID string
	userID string
}

// MaxSlowMode bounds the slow-mode interval a sender may request.
const MaxSlowMode = 24 * time.Hour

// SlowMode holds the last accepted send per (room, user). Check and Commit
// are separate so a send is only recorded after it has been persisted.
type SlowMode struct {
	mu   sync.Mutex
	last map[slowModeKey]time.Time
	now  func() time.Time
}

// NewSlowMode creates an empty table. now defaults to time.Now.
func NewSlowMode(now func() time.Time) *SlowMode {
	if now == nil {
		now = time.Now
	}
	return &SlowMode{last: make(map[slowModeKey]time.Time), now: now}
}

// Check returns the current time and, if the user sent into the room less
// than interval ago, a *RateLimitedError. A zero interval always passes.
func (s *SlowMode) Check(roomID, userID string, interval time.Duration) (time.Time, error) {
	now := s.now()
	if interval <= 0 {
		return now, nil
	}

	s.mu.Lock()
	last, ok := s.last[slowModeKey{roomID, userID}]
	s.mu.Unlock()

	if !ok {
		return now, nil
	}
	if elapsed := now.Sub(last); elapsed < interval {
		return now, &RateLimitedError{Remaining: interval - elapsed}
	}
	return now, nil
}

// Commit records an accepted send at time at.
func (s *SlowMode) Commit(roomID, userID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last[slowModeKey{roomID, userID}] = at
}

// LastSend returns the recorded time for (roomID, userID).
func (s *SlowMode) LastSend(roomID, userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.last[slowModeKey{roomID, userID}]
	return at, ok
}

// Prune drops entries older than retention and returns how many were
// removed. Retention must cover the longest interval in use.
func (s *SlowMode) Prune(retention time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, at := range s.last {
		if now.Sub(at) >= retention {
			delete(s.last, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked entries.
func (s *SlowMode) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.last)
}
