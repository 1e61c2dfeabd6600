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

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSqlite(t *testing.T) *Store {
	s, err := Open(context.Background(), DriverSqlite, filepath.Join(t.TempDir(), "adapter.db"))
	require.Nil(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "")
	assert.NotNil(t, err)

	s := openSqlite(t)
	// tables are created only once
	_, err = New(context.Background(), s.db, DriverSqlite)
	assert.Nil(t, err)

	assert.Equal(t, "a = $1 AND b = $2", (&Store{driver: DriverPgx}).rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ? AND b = ?", (&Store{driver: DriverMysql}).rebind("a = ? AND b = ?"))
	assert.Equal(t, "?, ?, ?", marks(3))
	assert.Equal(t, "INSERT IGNORE INTO t (a) VALUES (?)", dialects[DriverMysql].insertIgnore("t", "a", "?", "a"))
}

func TestQueueStore(t *testing.T) {
	s := openSqlite(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)

	ok, err := s.Add(ctx, &types.QueuedItem{ID: "2", GroupKey: "cr-patient/Patient/p2", ClientResourceID: "cr-patient",
		ResourceType: "Patient", ResourceID: "p2", ContentType: "application/fhir+json", Payload: []byte(`{"id":"p2"}`),
		ReceivedAt: now, Attempts: 1})
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = s.Add(ctx, &types.QueuedItem{ID: "1", GroupKey: "cr-patient", ClientResourceID: "cr-patient",
		ReceivedAt: now.Add(-time.Second)})
	require.Nil(t, err)
	assert.True(t, ok)

	t.Run("Duplicate", func(t *testing.T) {
		ok, err := s.Add(ctx, &types.QueuedItem{ID: "3", GroupKey: "cr-patient", ReceivedAt: now})
		require.Nil(t, err)
		assert.False(t, ok)
	})

	t.Run("List", func(t *testing.T) {
		items, err := s.List(ctx)
		require.Nil(t, err)
		require.Equal(t, 2, len(items))
		assert.Equal(t, "1", items[0].ID)
		assert.Nil(t, items[0].Payload)
		second := items[1]
		assert.Equal(t, "p2", second.ResourceID)
		assert.Equal(t, []byte(`{"id":"p2"}`), second.Payload)
		assert.True(t, second.ReceivedAt.Equal(now))
		assert.Equal(t, 1, second.Attempts)
	})

	t.Run("Remove", func(t *testing.T) {
		require.Nil(t, s.Remove(ctx, "cr-patient"))
		require.Nil(t, s.Remove(ctx, "unknown"))
		items, _ := s.List(ctx)
		assert.Equal(t, 1, len(items))
		ok, _ := s.Add(ctx, &types.QueuedItem{ID: "4", GroupKey: "cr-patient", ReceivedAt: now})
		assert.True(t, ok)
	})
}

func TestStoredResources(t *testing.T) {
	s := openSqlite(t)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "c1", "Patient/p1/_history/1")
	require.Nil(t, err)
	assert.False(t, ok)

	res := types.StoredResource{ClientID: "c1", StoredID: "Patient/p1/_history/1"}
	require.Nil(t, s.Store(ctx, res))
	require.Nil(t, s.Store(ctx, res))
	ok, _ = s.Contains(ctx, "c1", "Patient/p1/_history/1")
	assert.True(t, ok)
	ok, _ = s.Contains(ctx, "c2", "Patient/p1/_history/1")
	assert.False(t, ok)
}
