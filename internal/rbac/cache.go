// Castellan - RBAC and Audit Core for Content Management
// Copyright 2026 The Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan/castellan

package rbac

import (
	"strings"
	"sync"
	"time"
)

// decisionCache caches permission decisions keyed by role, resource, action,
// and scope. Entries are evicted by TTL and invalidated per role on any role
// mutation.
type decisionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	decision  Decision
	expiresAt time.Time
}

// newDecisionCache creates a new cache. Non-positive TTLs fall back to the
// default of one minute.
func newDecisionCache(ttl time.Duration) *decisionCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	c := &decisionCache{
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// key generates a cache key. The role is the leading component so that
// invalidateRole can match by prefix.
func (c *decisionCache) key(role, resource, action string, scope Scope) string {
	return role + "\x00" + resource + "\x00" + action + "\x00" + string(scope)
}

// get retrieves a cached decision.
func (c *decisionCache) get(role, resource, action string, scope Scope) (Decision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(role, resource, action, scope)]
	if !ok {
		return Decision{}, false
	}
	if time.Now().After(item.expiresAt) {
		return Decision{}, false
	}
	return item.decision, true
}

// set stores a decision in the cache.
func (c *decisionCache) set(role, resource, action string, scope Scope, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[c.key(role, resource, action, scope)] = &cacheItem{
		decision:  d,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// invalidateRole removes all cached decisions for a role.
func (c *decisionCache) invalidateRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := role + "\x00"
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
}

// len returns the current entry count.
func (c *decisionCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// cleanup periodically removes expired items.
func (c *decisionCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// stop stops the cleanup goroutine. Idempotent.
func (c *decisionCache) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
