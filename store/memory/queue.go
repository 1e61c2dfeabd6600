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

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/rulego/fhiradapter/api/types"
)

// QueueStore keeps pending queue items in memory.
type QueueStore struct {
	mu    sync.Mutex
	items map[string]*types.QueuedItem
}

func NewQueueStore() *QueueStore {
	return &QueueStore{items: make(map[string]*types.QueuedItem)}
}

func (s *QueueStore) Add(ctx context.Context, item *types.QueuedItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.GroupKey]; ok {
		return false, nil
	}
	c := *item
	s.items[item.GroupKey] = &c
	return true, nil
}

func (s *QueueStore) Remove(ctx context.Context, groupKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, groupKey)
	return nil
}

func (s *QueueStore) List(ctx context.Context) ([]*types.QueuedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*types.QueuedItem, 0, len(s.items))
	for _, item := range s.items {
		c := *item
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ReceivedAt.Equal(result[j].ReceivedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].ReceivedAt.Before(result[j].ReceivedAt)
	})
	return result, nil
}

// StoredResources remembers processed FHIR resource versions.
type StoredResources struct {
	mu        sync.RWMutex
	resources map[string]types.StoredResource
}

func NewStoredResources() *StoredResources {
	return &StoredResources{resources: make(map[string]types.StoredResource)}
}

func (s *StoredResources) Contains(ctx context.Context, clientID, storedID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.resources[clientID+"|"+storedID]
	return ok, nil
}

func (s *StoredResources) Store(ctx context.Context, resource types.StoredResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resource.ClientID+"|"+resource.StoredID] = resource
	return nil
}

var _ types.QueueStore = (*QueueStore)(nil)
var _ types.StoredResourceRepository = (*StoredResources)(nil)
