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

// Package tracker holds the tracker-side domain model: tracked entities,
// enrollments, program-stage events and the program metadata that
// describes them.
package tracker

import (
	"fmt"
	"strings"
	"time"
)

// ResourceType tracker资源类型
type ResourceType string

const (
	TrackedEntityType     ResourceType = "TRACKED_ENTITY"
	EnrollmentType        ResourceType = "ENROLLMENT"
	ProgramStageEventType ResourceType = "PROGRAM_STAGE_EVENT"
	OrganizationUnitType  ResourceType = "ORGANIZATION_UNIT"
)

// ReferenceType tells how Reference.Value identifies a metadata object.
type ReferenceType string

const (
	ReferenceID   ReferenceType = "ID"
	ReferenceCode ReferenceType = "CODE"
	ReferenceName ReferenceType = "NAME"
)

// Reference 元数据引用，可以通过ID、编码或名称引用
type Reference struct {
	Type  ReferenceType `json:"type" yaml:"type"`
	Value string        `json:"value" yaml:"value"`
}

func NewReference(value string, referenceType ReferenceType) Reference {
	return Reference{Type: referenceType, Value: value}
}

// ParseReference parses the "TYPE:value" notation. A value without a type
// prefix is a code reference.
func ParseReference(s string) (Reference, error) {
	if s == "" {
		return Reference{}, fmt.Errorf("empty reference")
	}
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return Reference{Type: ReferenceCode, Value: s}, nil
	}
	t := ReferenceType(strings.ToUpper(s[:idx]))
	switch t {
	case ReferenceID, ReferenceCode, ReferenceName:
		return Reference{Type: t, Value: s[idx+1:]}, nil
	default:
		return Reference{}, fmt.Errorf("unknown reference type %q", s[:idx])
	}
}

func (r Reference) IsZero() bool {
	return r.Value == ""
}

func (r Reference) String() string {
	return string(r.Type) + ":" + r.Value
}

// Matches reports whether the reference points to the object with the given identity.
func (r Reference) Matches(id, code, name string) bool {
	switch r.Type {
	case ReferenceID:
		return r.Value == id
	case ReferenceCode:
		return r.Value == code
	case ReferenceName:
		return r.Value == name
	}
	return false
}

// Resource is implemented by every tracker resource.
type Resource interface {
	GetID() string
	GetResourceType() ResourceType
	IsNewResource() bool
	IsDeleted() bool
	IsModified() bool
	GetLastUpdated() *time.Time
}

// Location 坐标
type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
