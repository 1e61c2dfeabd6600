/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// LRUCache is a bounded cache with least-recently-used eviction beyond the
// population cap and time based eviction of entries idle for longer than
// the max idle lifetime. Idle entries are evicted on every insert and are
// never returned by Get.
type LRUCache[K comparable, V any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[K, *lruEntry[V]]
	maxIdle time.Duration
	now     func() time.Time
}

type lruEntry[V any] struct {
	value    V
	lastUsed time.Time
}

// NewLRUCache creates a cache holding at most size entries. maxIdle <= 0 disables idle eviction.
func NewLRUCache[K comparable, V any](size int, maxIdle time.Duration) (*LRUCache[K, V], error) {
	l, err := simplelru.NewLRU[K, *lruEntry[V]](size, nil)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{lru: l, maxIdle: maxIdle, now: time.Now}, nil
}

// Get returns the value and marks it as used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	now := c.now()
	if c.idle(e, now) {
		c.lru.Remove(key)
		return zero, false
	}
	e.lastUsed = now
	return e.value, true
}

// Add inserts or replaces the value after evicting idle entries.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.evictIdleLocked(now)
	c.lru.Add(key, &lruEntry[V]{value: value, lastUsed: now})
}

// GetOrCreate returns the cached value or stores the one returned by create.
// create runs outside the lock; when two callers race the later insert wins.
func (c *LRUCache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.Add(key, v)
	return v, nil
}

func (c *LRUCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge removes all entries.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// evictIdleLocked walks from the least recently used entry and stops at the first one still alive.
func (c *LRUCache[K, V]) evictIdleLocked(now time.Time) {
	if c.maxIdle <= 0 {
		return
	}
	for {
		key, e, ok := c.lru.GetOldest()
		if !ok || !c.idle(e, now) {
			return
		}
		c.lru.Remove(key)
	}
}

func (c *LRUCache[K, V]) idle(e *lruEntry[V], now time.Time) bool {
	return c.maxIdle > 0 && now.Sub(e.lastUsed) > c.maxIdle
}
