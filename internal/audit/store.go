// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package audit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store in memory. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxLen events.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save appends event. When full, the oldest tenth is dropped first.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxLen {
		removeCount := max(s.maxLen/10, 1)
		s.events = append(s.events[:0], s.events[removeCount:]...)
	}

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []Event{}
	for i := len(s.events) - 1; i >= 0; i-- {
		if !filter.Matches(&s.events[i]) {
			continue
		}
		results = append(results, s.events[i])
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if filter.Matches(&s.events[i]) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for i := range s.events {
		if s.events[i].Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, s.events[i])
	}
	s.events = kept
	return deleted, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
