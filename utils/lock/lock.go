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

// Package lock provides the embedded, process local lock manager used to
// serialize mutations of one tracker identity. Locks do not coordinate
// across processes.
package lock

import (
	"context"
	"sort"
	"sync"

	"github.com/rulego/fhiradapter/api/types"
)

type ctxKey struct{}

// Manager holds the set of locked keys. Waiters park on a broadcast channel
// which is closed and replaced whenever a key is released.
type Manager struct {
	mu       sync.Mutex
	locks    map[string]*Context
	released chan struct{}
}

// NewManager creates an empty lock manager.
func NewManager() *Manager {
	return &Manager{
		locks:    make(map[string]*Context),
		released: make(chan struct{}),
	}
}

// Begin attaches a new lock context to ctx. It fails when ctx already carries an open context.
func (m *Manager) Begin(ctx context.Context) (context.Context, types.LockContext, error) {
	if lc, ok := m.Current(ctx); ok {
		return ctx, lc, types.NewLockMisuseError("a lock context is already active for this execution")
	}
	lc := &Context{m: m, held: make(map[string]struct{})}
	return context.WithValue(ctx, ctxKey{}, lc), lc, nil
}

// Current returns the open lock context carried by ctx.
func (m *Manager) Current(ctx context.Context) (types.LockContext, bool) {
	if ctx == nil {
		return nil, false
	}
	lc, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || lc == nil || lc.m != m || lc.isClosed() {
		return nil, false
	}
	return lc, true
}

// HeldKeys returns the sorted keys currently locked by any context.
func (m *Manager) HeldKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.locks))
	for k := range m.locks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// acquire 阻塞直到key空闲
func (m *Manager) acquire(ctx context.Context, owner *Context, key string) error {
	for {
		m.mu.Lock()
		current, held := m.locks[key]
		if !held {
			m.locks[key] = owner
			m.mu.Unlock()
			return nil
		}
		if current == owner {
			m.mu.Unlock()
			return nil
		}
		wait := m.released
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return types.NewLockInterruptedError(ctx.Err(), key)
		}
	}
}

// releaseLocked must be called with m.mu held.
func (m *Manager) releaseLocked(owner *Context, keys []string) {
	changed := false
	for _, key := range keys {
		if m.locks[key] == owner {
			delete(m.locks, key)
			changed = true
		}
	}
	if changed {
		close(m.released)
		m.released = make(chan struct{})
	}
}

// Context is the lock set of one logical execution. It must not be shared
// between goroutines that lock concurrently.
type Context struct {
	m      *Manager
	mu     sync.Mutex
	held   map[string]struct{}
	closed bool
}

// Lock blocks until key is free. Locking a key that is already held by this context is a no-op.
func (c *Context) Lock(ctx context.Context, key string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.NewLockMisuseError("lock context has been closed")
	}
	if _, ok := c.held[key]; ok {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.m.acquire(ctx, c, key); err != nil {
		return err
	}
	c.mu.Lock()
	c.held[key] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Unlock releases a single key. Unlocking a key this context does not hold is a misuse.
func (c *Context) Unlock(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[key]; !ok {
		return types.NewLockMisuseError("lock %s is not held", key)
	}
	delete(c.held, key)
	c.m.mu.Lock()
	c.m.releaseLocked(c, []string{key})
	c.m.mu.Unlock()
	return nil
}

// UnlockAll releases every key held by this context.
func (c *Context) UnlockAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlockAllLocked()
	return nil
}

func (c *Context) unlockAllLocked() {
	if len(c.held) == 0 {
		return
	}
	keys := make([]string, 0, len(c.held))
	for k := range c.held {
		keys = append(keys, k)
	}
	c.held = make(map[string]struct{})
	c.m.mu.Lock()
	c.m.releaseLocked(c, keys)
	c.m.mu.Unlock()
}

// Close releases everything and detaches the context so a new one can begin.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlockAllLocked()
	c.closed = true
	return nil
}

// Keys returns the sorted keys held by this context.
func (c *Context) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.held))
	for k := range c.held {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

var _ types.LockManager = (*Manager)(nil)
var _ types.LockContext = (*Context)(nil)
