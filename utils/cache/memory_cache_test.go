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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	defer c.StopGC()

	t.Run("SetAndGet", func(t *testing.T) {
		err := c.Set("program:CODE:P1", "p1", "1m")
		assert.Nil(t, err)
		assert.Equal(t, "p1", c.Get("program:CODE:P1"))
		assert.True(t, c.Has("program:CODE:P1"))
		assert.Nil(t, c.Get("missing"))
	})

	t.Run("Expiry", func(t *testing.T) {
		assert.Nil(t, c.Set("short", "v", "50ms"))
		time.Sleep(100 * time.Millisecond)
		assert.Nil(t, c.Get("short"))
		assert.False(t, c.Has("short"))
	})

	t.Run("InvalidTTL", func(t *testing.T) {
		assert.NotNil(t, c.Set("bad", "v", "ten minutes"))
	})

	t.Run("Prefix", func(t *testing.T) {
		_ = c.Set("rules:Patient", 1, "")
		_ = c.Set("rules:Observation", 2, "")
		_ = c.Set("clients:c1", 3, "")
		assert.Equal(t, 2, len(c.GetByPrefix("rules:")))
		assert.Nil(t, c.DeleteByPrefix("rules:"))
		assert.Equal(t, 0, len(c.GetByPrefix("rules:")))
		assert.Equal(t, 3, c.Get("clients:c1"))
	})
}

func TestMemoryCacheGC(t *testing.T) {
	c := NewMemoryCache(20 * time.Millisecond)
	_ = c.Set("permanent", "v", "")
	c.mu.RLock()
	assert.Nil(t, c.ticker)
	c.mu.RUnlock()

	_ = c.Set("expiring", "v", "30ms")
	c.mu.RLock()
	assert.NotNil(t, c.ticker)
	c.mu.RUnlock()

	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, found := c.items["expiring"]
		return !found && c.ticker == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "v", c.Get("permanent"))
}

func TestNamespaceCache(t *testing.T) {
	base := NewMemoryCache(time.Minute)
	cache := NewNamespaceCache(base, "rules:")

	assert.Nil(t, cache.Set("Patient", "r1", "1m"))
	assert.Equal(t, "r1", cache.Get("Patient"))
	assert.Equal(t, "r1", base.Get("rules:Patient"))
	assert.Equal(t, map[string]interface{}{"Patient": "r1"}, cache.GetByPrefix(""))

	assert.Nil(t, cache.Delete("Patient"))
	assert.False(t, cache.Has("Patient"))

	var nilCache *NamespaceCache
	assert.Nil(t, NewNamespaceCache(nil, "x"))
	assert.Equal(t, nil, nilCache.Get("x"))
	assert.NotNil(t, nilCache.Set("x", 1, ""))
}
