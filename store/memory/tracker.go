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
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
)

// TrackerStore is an in-memory tracker. It stores copies, so callers never
// share state with the store.
type TrackerStore struct {
	mu              sync.RWMutex
	trackedEntities map[string]*tracker.TrackedEntity
	enrollments     map[string]*tracker.Enrollment
	events          map[string]*tracker.Event
	now             func() time.Time
	username        string
}

// NewTrackerStore creates an empty store; username is recorded as the user
// storing changed values.
func NewTrackerStore(username string) *TrackerStore {
	return &TrackerStore{
		trackedEntities: make(map[string]*tracker.TrackedEntity),
		enrollments:     make(map[string]*tracker.Enrollment),
		events:          make(map[string]*tracker.Event),
		now:             time.Now,
		username:        username,
	}
}

func (s *TrackerStore) FindTrackedEntity(ctx context.Context, id string) (*tracker.TrackedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if te, ok := s.trackedEntities[id]; ok {
		return te.Clone(), nil
	}
	return nil, types.ErrNotFound
}

func (s *TrackerStore) FindTrackedEntityByIdentifier(ctx context.Context, typeID, attributeID, value string) (*tracker.TrackedEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, te := range s.trackedEntities {
		if te.TypeID != typeID {
			continue
		}
		if a, ok := te.FindAttribute(attributeID); ok && a.Value == value {
			return te.Clone(), nil
		}
	}
	return nil, nil
}

func (s *TrackerStore) FindActiveEnrollment(ctx context.Context, programID, trackedEntityID string) (*tracker.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.enrollments {
		if e.ProgramID == programID && e.TrackedEntityID == trackedEntityID && e.Status == tracker.EnrollmentActive {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

// FindEvents returns the events ordered by event date.
func (s *TrackerStore) FindEvents(ctx context.Context, programStageID, enrollmentID string) ([]*tracker.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*tracker.Event
	for _, e := range s.events {
		if e.ProgramStageID == programStageID && e.EnrollmentID == enrollmentID && !e.Deleted {
			result = append(result, e.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].EventDate, result[j].EventDate
		if a == nil || b == nil || a.Equal(*b) {
			return result[i].ID < result[j].ID
		}
		return a.Before(*b)
	})
	return result, nil
}

// Save stores a copy of the resource and assigns an id to new resources.
func (s *TrackerStore) Save(ctx context.Context, resource tracker.Resource) (string, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := resource.(type) {
	case *tracker.TrackedEntity:
		c := r.Clone()
		c.ID = s.idOf(c.ID)
		c.LastUpdated = &now
		for _, a := range c.Attributes {
			if a.IsModified() {
				a.LastUpdated = &now
				a.StoredBy = s.username
			}
		}
		tracker.MarkStored(c)
		s.trackedEntities[c.ID] = c
		return c.ID, nil
	case *tracker.Enrollment:
		c := r.Clone()
		c.ID = s.idOf(c.ID)
		c.LastUpdated = &now
		tracker.MarkStored(c)
		s.enrollments[c.ID] = c
		return c.ID, nil
	case *tracker.Event:
		c := r.Clone()
		c.ID = s.idOf(c.ID)
		c.LastUpdated = &now
		for _, dv := range c.DataValues {
			if dv.IsModified() {
				dv.LastUpdated = &now
				dv.StoredBy = s.username
			}
		}
		tracker.MarkStored(c)
		s.events[c.ID] = c
		return c.ID, nil
	}
	return "", types.NewFatalError("unsupported tracker resource %T", resource)
}

func (s *TrackerStore) idOf(id string) string {
	if id != "" {
		return id
	}
	return uuid.Must(uuid.NewV4()).String()
}

var _ types.TrackerRepository = (*TrackerStore)(nil)
