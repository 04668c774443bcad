// Huddle - Realtime Chat and Call Signaling Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package authz

import (
	"strings"
	"sync"
	"time"
)

// decisionCache memoizes enforce results for ttl. Keys are
// subject, room and action joined by NUL so no id can forge another key.
type decisionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]cachedDecision
	stopChan chan struct{}
	stopOnce sync.Once
}

type cachedDecision struct {
	allowed   bool
	expiresAt time.Time
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &decisionCache{
		ttl:      ttl,
		items:    make(map[string]cachedDecision),
		stopChan: make(chan struct{}),
	}
	go c.janitor()
	return c
}

func cacheKey(sub, room, action string) string {
	return sub + "\x00" + room + "\x00" + action
}

func (c *decisionCache) get(sub, room, action string) (allowed, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[cacheKey(sub, room, action)]
	if !found || time.Now().After(item.expiresAt) {
		return false, false
	}
	return item.allowed, true
}

func (c *decisionCache) set(sub, room, action string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[cacheKey(sub, room, action)] = cachedDecision{allowed: allowed, expiresAt: time.Now().Add(c.ttl)}
}

func (c *decisionCache) invalidateSubject(sub string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := sub + "\x00"
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *decisionCache) janitor() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// stop is idempotent.
func (c *decisionCache) stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}
