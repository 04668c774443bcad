// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

// Package cache provides a bounded, thread-safe LRU with TTL expiry.
//
// Presence keeps the last-seen time of offline users in one, so memory stays
// bounded no matter how many distinct users ever connect.
package cache

import (
	"sync"
	"time"
)

const (
	defaultCapacity = 10000
	defaultTTL      = 5 * time.Minute
)

type lruEntry[V any] struct {
	key       string
	value     V
	prev      *lruEntry[V]
	next      *lruEntry[V]
	expiresAt time.Time
}

// LRU is a least recently used cache with per-entry TTL.
//
// Get, Add and Remove are O(1). Expired entries are dropped lazily on
// access, or in bulk by CleanupExpired.
type LRU[V any] struct {
	mu sync.Mutex

	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*lruEntry[V]

	// head.next is the most recently used, tail.prev the least.
	head *lruEntry[V]
	tail *lruEntry[V]

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache. Non-positive capacity or ttl take defaults and a
// nil now uses time.Now.
func NewLRU[V any](capacity int, ttl time.Duration, now func() time.Time) *LRU[V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if now == nil {
		now = time.Now
	}

	c := &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		items:    make(map[string]*lruEntry[V]),
		head:     &lruEntry[V]{},
		tail:     &lruEntry[V]{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeEntry(entry)
		c.misses++
		return zero, false
	}
	c.moveToFront(entry)
	c.hits++
	return entry.value, true
}

// Add inserts or replaces key, evicting the least recently used entry when
// over capacity.
func (c *LRU[V]) Add(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(c.ttl)
	if entry, ok := c.items[key]; ok {
		entry.value = value
		entry.expiresAt = expiresAt
		c.moveToFront(entry)
		return
	}

	entry := &lruEntry[V]{key: key, value: value, expiresAt: expiresAt}
	c.addToFront(entry)
	c.items[key] = entry

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Remove deletes key and reports whether it was present.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		c.removeEntry(entry)
		return true
	}
	return false
}

// Len returns the number of entries, expired ones included until they are
// cleaned up.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CleanupExpired drops every expired entry and returns how many it dropped.
func (c *LRU[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for entry := c.tail.prev; entry != c.head; {
		prev := entry.prev
		if now.After(entry.expiresAt) {
			c.removeEntry(entry)
			removed++
		}
		entry = prev
	}
	return removed
}

// Stats reports hits, misses and capacity evictions.
func (c *LRU[V]) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// Internal methods, called with mu held.

func (c *LRU[V]) addToFront(entry *lruEntry[V]) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LRU[V]) moveToFront(entry *lruEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	c.addToFront(entry)
}

func (c *LRU[V]) removeEntry(entry *lruEntry[V]) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(c.items, entry.key)
}

func (c *LRU[V]) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.removeEntry(oldest)
	c.evictions++
}
