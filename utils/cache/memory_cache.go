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

// Package cache provides the in-memory caches of the adapter: a TTL cache
// for metadata lookups and a bounded LRU cache with idle expiry for
// compiled scripts.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rulego/fhiradapter/api/types"
)

// MemoryCache is an in-memory TTL cache. Expired entries are invisible to
// readers immediately and removed by a background GC that runs only while
// expirable entries exist.
type MemoryCache struct {
	items      map[string]item
	mu         sync.RWMutex
	stopGc     chan struct{}
	ticker     *time.Ticker
	gcInterval time.Duration
}

// expiration is a unix nano timestamp, 0 never expires
type item struct {
	value      interface{}
	expiration int64
}

// NewMemoryCache creates a cache whose GC runs every gcInterval, 5 minutes when not positive.
func NewMemoryCache(gcInterval time.Duration) *MemoryCache {
	c := &MemoryCache{
		items:      make(map[string]item),
		stopGc:     make(chan struct{}),
		gcInterval: time.Minute * 5,
	}
	if gcInterval > 0 {
		c.gcInterval = gcInterval
	}
	return c
}

func (c *MemoryCache) Set(key string, value interface{}, ttl string) error {
	var expiration int64
	if ttl != "" {
		dur, err := time.ParseDuration(ttl)
		if err != nil {
			return err
		}
		if dur > 0 {
			expiration = time.Now().Add(dur).UnixNano()
		}
	}

	c.mu.Lock()
	c.items[key] = item{value: value, expiration: expiration}
	shouldStartGC := expiration > 0 && c.ticker == nil
	c.mu.Unlock()

	if shouldStartGC {
		c.StartGC()
	}
	return nil
}

func (c *MemoryCache) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, found := c.items[key]
	if !found || it.expired(time.Now().UnixNano()) {
		return nil
	}
	return it.value
}

func (c *MemoryCache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, found := c.items[key]
	return found && !it.expired(time.Now().UnixNano())
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) DeleteByPrefix(prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

func (c *MemoryCache) GetByPrefix(prefix string) map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]interface{})
	now := time.Now().UnixNano()
	for k, v := range c.items {
		if strings.HasPrefix(k, prefix) && !v.expired(now) {
			result[k] = v.value
		}
	}
	return result
}

// StartGC starts the GC goroutine unless it is running or nothing can expire.
func (c *MemoryCache) StartGC() {
	c.mu.Lock()
	if c.ticker != nil || !c.hasExpirableLocked() {
		c.mu.Unlock()
		return
	}
	c.ticker = time.NewTicker(c.gcInterval)
	c.stopGc = make(chan struct{})
	ticker, stop := c.ticker, c.stopGc
	c.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				c.deleteExpired()
			case <-stop:
				ticker.Stop()
				c.mu.Lock()
				if c.ticker == ticker {
					c.ticker = nil
				}
				c.mu.Unlock()
				return
			}
		}
	}()
}

// StopGC signals the GC goroutine to stop. Safe to call repeatedly.
func (c *MemoryCache) StopGC() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil || c.stopGc == nil {
		return
	}
	select {
	case <-c.stopGc:
	default:
		close(c.stopGc)
	}
}

func (c *MemoryCache) deleteExpired() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
		}
	}
	remaining := c.hasExpirableLocked()
	c.mu.Unlock()

	if !remaining {
		c.StopGC()
	}
}

func (c *MemoryCache) hasExpirableLocked() bool {
	for _, it := range c.items {
		if it.expiration > 0 {
			return true
		}
	}
	return false
}

func (it item) expired(now int64) bool {
	return it.expiration > 0 && now > it.expiration
}

// NamespaceCache prefixes every key of an underlying cache. The metadata
// repositories use one namespace per lookup kind so a reload can evict
// exactly the affected entries.
type NamespaceCache struct {
	Cache     types.Cache // 底层缓存实现
	Namespace string      // 命名空间前缀
}

// NewNamespaceCache returns nil when cache is nil.
func NewNamespaceCache(cache types.Cache, namespace string) *NamespaceCache {
	if cache == nil {
		return nil
	}
	return &NamespaceCache{Cache: cache, Namespace: namespace}
}

func (c *NamespaceCache) Set(key string, value interface{}, ttl string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Set(c.Namespace+key, value, ttl)
}

func (c *NamespaceCache) Get(key string) interface{} {
	if c == nil || c.Cache == nil {
		return nil
	}
	return c.Cache.Get(c.Namespace + key)
}

func (c *NamespaceCache) Delete(key string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.Delete(c.Namespace + key)
}

func (c *NamespaceCache) Has(key string) bool {
	if c == nil || c.Cache == nil {
		return false
	}
	return c.Cache.Has(c.Namespace + key)
}

func (c *NamespaceCache) DeleteByPrefix(prefix string) error {
	if c == nil || c.Cache == nil {
		return types.ErrCacheNotInitialized
	}
	return c.Cache.DeleteByPrefix(c.Namespace + prefix)
}

func (c *NamespaceCache) GetByPrefix(prefix string) map[string]interface{} {
	if c == nil || c.Cache == nil {
		return map[string]interface{}{}
	}
	result := make(map[string]interface{})
	for k, v := range c.Cache.GetByPrefix(c.Namespace + prefix) {
		result[strings.TrimPrefix(k, c.Namespace)] = v
	}
	return result
}

var _ types.Cache = (*NamespaceCache)(nil)
var _ types.Cache = (*MemoryCache)(nil)
