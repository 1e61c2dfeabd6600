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

package tracker

import "time"

type EventStatus string

const (
	EventActive    EventStatus = "ACTIVE"
	EventCompleted EventStatus = "COMPLETED"
	EventVisited   EventStatus = "VISITED"
	EventSchedule  EventStatus = "SCHEDULE"
	EventOverdue   EventStatus = "OVERDUE"
	EventSkipped   EventStatus = "SKIPPED"
)

// EventStatuses 所有事件状态
var EventStatuses = []EventStatus{EventActive, EventCompleted, EventVisited, EventSchedule, EventOverdue, EventSkipped}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

var EnrollmentStatuses = []EnrollmentStatus{EnrollmentActive, EnrollmentCompleted, EnrollmentCancelled}

// DataValue is the value of one data element of an event.
type DataValue struct {
	DataElementID     string     `json:"dataElement"`
	Value             string     `json:"value,omitempty"`
	ProvidedElsewhere bool       `json:"providedElsewhere"`
	LastUpdated       *time.Time `json:"lastUpdated,omitempty"`
	StoredBy          string     `json:"storedBy,omitempty"`
	HasValue          bool       `json:"-"`
	modified          bool
	newResource       bool
}

func NewDataValue(dataElementID string) *DataValue {
	return &DataValue{DataElementID: dataElementID, newResource: true}
}

func (v *DataValue) SetValue(value string) {
	v.Value = value
	v.HasValue = true
}

func (v *DataValue) ClearValue() {
	v.Value = ""
	v.HasValue = false
}

func (v *DataValue) SetModified()        { v.modified = true }
func (v *DataValue) IsModified() bool    { return v.modified }
func (v *DataValue) IsNewResource() bool { return v.newResource }

func (v *DataValue) clone() *DataValue {
	c := *v
	c.LastUpdated = cloneTime(v.LastUpdated)
	return &c
}

// Event 程序阶段事件
type Event struct {
	ID              string       `json:"event,omitempty"`
	ProgramID       string       `json:"program"`
	ProgramStageID  string       `json:"programStage"`
	EnrollmentID    string       `json:"enrollment,omitempty"`
	TrackedEntityID string       `json:"trackedEntityInstance,omitempty"`
	OrgUnitID       string       `json:"orgUnit"`
	EventDate       *time.Time   `json:"eventDate,omitempty"`
	DueDate         *time.Time   `json:"dueDate,omitempty"`
	Status          EventStatus  `json:"status,omitempty"`
	Coordinate      *Location    `json:"coordinate,omitempty"`
	LastUpdated     *time.Time   `json:"lastUpdated,omitempty"`
	DataValues      []*DataValue `json:"dataValues"`
	NewResource     bool         `json:"-"`
	Deleted         bool         `json:"-"`
	modified        bool
}

func (e *Event) GetID() string                 { return e.ID }
func (e *Event) GetResourceType() ResourceType { return ProgramStageEventType }
func (e *Event) IsNewResource() bool           { return e.NewResource }
func (e *Event) IsDeleted() bool               { return e.Deleted }
func (e *Event) GetLastUpdated() *time.Time    { return e.LastUpdated }
func (e *Event) SetModified()                  { e.modified = true }

// IsModified reports whether the event itself or any data value has been modified.
func (e *Event) IsModified() bool {
	return e.modified || e.IsAnyDataValueModified()
}

func (e *Event) IsAnyDataValueModified() bool {
	for _, dv := range e.DataValues {
		if dv.IsModified() {
			return true
		}
	}
	return false
}

// FindDataValue returns the existing data value of the data element.
func (e *Event) FindDataValue(dataElementID string) (*DataValue, bool) {
	for _, dv := range e.DataValues {
		if dv.DataElementID == dataElementID {
			return dv, true
		}
	}
	return nil, false
}

// GetDataValue returns the data value of the data element and creates it when missing.
func (e *Event) GetDataValue(dataElementID string) *DataValue {
	if dv, ok := e.FindDataValue(dataElementID); ok {
		return dv
	}
	dv := NewDataValue(dataElementID)
	e.DataValues = append(e.DataValues, dv)
	return dv
}

// ModifiedDataValues 返回被修改过的数据值，只有这些需要写入下游
func (e *Event) ModifiedDataValues() []*DataValue {
	var result []*DataValue
	for _, dv := range e.DataValues {
		if dv.IsModified() {
			result = append(result, dv)
		}
	}
	return result
}

func (e *Event) Clone() *Event {
	c := *e
	c.EventDate = cloneTime(e.EventDate)
	c.DueDate = cloneTime(e.DueDate)
	c.LastUpdated = cloneTime(e.LastUpdated)
	c.Coordinate = cloneLocation(e.Coordinate)
	c.DataValues = make([]*DataValue, len(e.DataValues))
	for i, dv := range e.DataValues {
		c.DataValues[i] = dv.clone()
	}
	return &c
}

// Attribute is the value of one tracked entity attribute.
type Attribute struct {
	AttributeID string     `json:"attribute"`
	Value       string     `json:"value"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	StoredBy    string     `json:"storedBy,omitempty"`
	modified    bool
}

func (a *Attribute) SetModified()     { a.modified = true }
func (a *Attribute) IsModified() bool { return a.modified }

// TrackedEntity 跟踪实体
type TrackedEntity struct {
	ID          string       `json:"trackedEntityInstance,omitempty"`
	TypeID      string       `json:"trackedEntityType"`
	OrgUnitID   string       `json:"orgUnit"`
	Coordinate  *Location    `json:"coordinate,omitempty"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
	Attributes  []*Attribute `json:"attributes"`
	NewResource bool         `json:"-"`
	Deleted     bool         `json:"-"`
	modified    bool
}

func (t *TrackedEntity) GetID() string                 { return t.ID }
func (t *TrackedEntity) GetResourceType() ResourceType { return TrackedEntityType }
func (t *TrackedEntity) IsNewResource() bool           { return t.NewResource }
func (t *TrackedEntity) IsDeleted() bool               { return t.Deleted }
func (t *TrackedEntity) GetLastUpdated() *time.Time    { return t.LastUpdated }
func (t *TrackedEntity) SetModified()                  { t.modified = true }

func (t *TrackedEntity) IsModified() bool {
	if t.modified {
		return true
	}
	for _, a := range t.Attributes {
		if a.IsModified() {
			return true
		}
	}
	return false
}

func (t *TrackedEntity) FindAttribute(attributeID string) (*Attribute, bool) {
	for _, a := range t.Attributes {
		if a.AttributeID == attributeID {
			return a, true
		}
	}
	return nil, false
}

// GetAttribute returns the attribute value holder and creates it when missing.
func (t *TrackedEntity) GetAttribute(attributeID string) *Attribute {
	if a, ok := t.FindAttribute(attributeID); ok {
		return a
	}
	a := &Attribute{AttributeID: attributeID}
	t.Attributes = append(t.Attributes, a)
	return a
}

func (t *TrackedEntity) Clone() *TrackedEntity {
	c := *t
	c.LastUpdated = cloneTime(t.LastUpdated)
	c.Coordinate = cloneLocation(t.Coordinate)
	c.Attributes = make([]*Attribute, len(t.Attributes))
	for i, a := range t.Attributes {
		ac := *a
		ac.LastUpdated = cloneTime(a.LastUpdated)
		c.Attributes[i] = &ac
	}
	return &c
}

// Enrollment 项目登记
type Enrollment struct {
	ID              string           `json:"enrollment,omitempty"`
	ProgramID       string           `json:"program"`
	TrackedEntityID string           `json:"trackedEntityInstance"`
	OrgUnitID       string           `json:"orgUnit"`
	EnrollmentDate  *time.Time       `json:"enrollmentDate,omitempty"`
	IncidentDate    *time.Time       `json:"incidentDate,omitempty"`
	Status          EnrollmentStatus `json:"status,omitempty"`
	Coordinate      *Location        `json:"coordinate,omitempty"`
	LastUpdated     *time.Time       `json:"lastUpdated,omitempty"`
	NewResource     bool             `json:"-"`
	Deleted         bool             `json:"-"`
	modified        bool
}

func (e *Enrollment) GetID() string                 { return e.ID }
func (e *Enrollment) GetResourceType() ResourceType { return EnrollmentType }
func (e *Enrollment) IsNewResource() bool           { return e.NewResource }
func (e *Enrollment) IsDeleted() bool               { return e.Deleted }
func (e *Enrollment) GetLastUpdated() *time.Time    { return e.LastUpdated }
func (e *Enrollment) SetModified()                  { e.modified = true }
func (e *Enrollment) IsModified() bool              { return e.modified }

func (e *Enrollment) Clone() *Enrollment {
	c := *e
	c.EnrollmentDate = cloneTime(e.EnrollmentDate)
	c.IncidentDate = cloneTime(e.IncidentDate)
	c.LastUpdated = cloneTime(e.LastUpdated)
	c.Coordinate = cloneLocation(e.Coordinate)
	return &c
}

// Clone returns a deep copy of a tracker resource of a known kind.
func Clone(r Resource) Resource {
	switch v := r.(type) {
	case *TrackedEntity:
		return v.Clone()
	case *Enrollment:
		return v.Clone()
	case *Event:
		return v.Clone()
	}
	return r
}

// MarkStored clears the new and modified state of r as after a successful save.
func MarkStored(r Resource) {
	switch v := r.(type) {
	case *TrackedEntity:
		v.NewResource, v.modified = false, false
		for _, a := range v.Attributes {
			a.modified = false
		}
	case *Enrollment:
		v.NewResource, v.modified = false, false
	case *Event:
		v.NewResource, v.modified = false, false
		for _, dv := range v.DataValues {
			dv.modified, dv.newResource = false, false
		}
	}
}
