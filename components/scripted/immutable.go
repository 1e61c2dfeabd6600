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

package scripted

import (
	"time"

	"github.com/rulego/fhiradapter/api/types/tracker"
)

// ImmutableScriptedResource is the read-only view of a tracker resource
// exports hand to scripts.
type ImmutableScriptedResource struct {
	resource tracker.Resource
}

func NewImmutableScriptedResource(resource tracker.Resource) *ImmutableScriptedResource {
	return &ImmutableScriptedResource{resource: resource}
}

// Unwrap returns the wrapped resource, for Go code only.
func (r *ImmutableScriptedResource) Unwrap() tracker.Resource {
	return r.resource
}

func (r *ImmutableScriptedResource) GetId() string {
	return r.resource.GetID()
}

func (r *ImmutableScriptedResource) GetResourceType() string {
	return string(r.resource.GetResourceType())
}

func (r *ImmutableScriptedResource) GetLastUpdated() *time.Time {
	return r.resource.GetLastUpdated()
}

func (r *ImmutableScriptedResource) GetOrganizationUnitId() string {
	switch v := r.resource.(type) {
	case *tracker.TrackedEntity:
		return v.OrgUnitID
	case *tracker.Enrollment:
		return v.OrgUnitID
	case *tracker.Event:
		return v.OrgUnitID
	}
	return ""
}

func (r *ImmutableScriptedResource) GetTrackedEntityId() string {
	switch v := r.resource.(type) {
	case *tracker.TrackedEntity:
		return v.ID
	case *tracker.Enrollment:
		return v.TrackedEntityID
	case *tracker.Event:
		return v.TrackedEntityID
	}
	return ""
}

// GetValue returns the attribute value of a tracked entity or the data
// value of an event, nil when there is none.
func (r *ImmutableScriptedResource) GetValue(id string) interface{} {
	switch v := r.resource.(type) {
	case *tracker.TrackedEntity:
		if a, ok := v.FindAttribute(id); ok {
			return a.Value
		}
	case *tracker.Event:
		if dv, ok := v.FindDataValue(id); ok && dv.HasValue {
			return dv.Value
		}
	}
	return nil
}

func (r *ImmutableScriptedResource) GetEventDate() *time.Time {
	if e, ok := r.resource.(*tracker.Event); ok {
		return e.EventDate
	}
	return nil
}

func (r *ImmutableScriptedResource) GetStatus() string {
	switch v := r.resource.(type) {
	case *tracker.Event:
		return string(v.Status)
	case *tracker.Enrollment:
		return string(v.Status)
	}
	return ""
}

func (r *ImmutableScriptedResource) GetCoordinate() *tracker.Location {
	switch v := r.resource.(type) {
	case *tracker.TrackedEntity:
		return v.Coordinate
	case *tracker.Enrollment:
		return v.Coordinate
	case *tracker.Event:
		return v.Coordinate
	}
	return nil
}
