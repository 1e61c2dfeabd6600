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

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
)

// WritableScriptedTrackedEntity is the tracked entity exposed to import scripts.
type WritableScriptedTrackedEntity struct {
	definition *tracker.TrackedEntityTypeDefinition
	entity     *tracker.TrackedEntity
	username   string
}

func NewWritableScriptedTrackedEntity(definition *tracker.TrackedEntityTypeDefinition, entity *tracker.TrackedEntity, username string) *WritableScriptedTrackedEntity {
	return &WritableScriptedTrackedEntity{definition: definition, entity: entity, username: username}
}

func (t *WritableScriptedTrackedEntity) Unwrap() *tracker.TrackedEntity {
	return t.entity
}

func (t *WritableScriptedTrackedEntity) GetId() string {
	return t.entity.ID
}

func (t *WritableScriptedTrackedEntity) GetTypeId() string {
	return t.entity.TypeID
}

func (t *WritableScriptedTrackedEntity) IsNewResource() bool {
	return t.entity.NewResource
}

func (t *WritableScriptedTrackedEntity) GetOrganizationUnitId() string {
	return t.entity.OrgUnitID
}

func (t *WritableScriptedTrackedEntity) SetOrganizationUnitId(id string) bool {
	if id != t.entity.OrgUnitID {
		t.entity.SetModified()
	}
	t.entity.OrgUnitID = id
	return id != ""
}

func (t *WritableScriptedTrackedEntity) GetCoordinate() *tracker.Location {
	return t.entity.Coordinate
}

func (t *WritableScriptedTrackedEntity) SetCoordinate(coordinate interface{}) (bool, error) {
	l, err := toLocation(coordinate)
	if err != nil {
		return false, err
	}
	if !equalLocation(l, t.entity.Coordinate) {
		t.entity.SetModified()
	}
	t.entity.Coordinate = l
	return true, nil
}

func (t *WritableScriptedTrackedEntity) GetValue(ref interface{}) (interface{}, error) {
	attribute, err := t.attribute(ref)
	if err != nil {
		return nil, err
	}
	a, ok := t.entity.FindAttribute(attribute.ID)
	if !ok || a.Value == "" {
		return nil, nil
	}
	return a.Value, nil
}

// SetValue sets an attribute value. The optional argument is the last
// updated timestamp of the source: newer values stored by other users are kept.
func (t *WritableScriptedTrackedEntity) SetValue(ref interface{}, value interface{}, lastUpdated ...interface{}) (bool, error) {
	attribute, err := t.attribute(ref)
	if err != nil {
		return false, err
	}
	if attribute.Generated && value != nil {
		return false, types.NewMappingError("Tracked entity type attribute \"%s\" is generated and cannot be set.", attribute.Name)
	}
	var lu *time.Time
	if len(lastUpdated) > 0 {
		if lu, err = toTime(lastUpdated[0]); err != nil {
			return false, err
		}
	}
	converted, _, err := convertValue(value, attribute.ValueType)
	if err != nil {
		return false, types.NewMappingError("Value of tracked entity type attribute \"%s\" could not be converted: %s", attribute.Name, err)
	}
	if converted != "" && attribute.OptionSet != nil && !attribute.OptionSet.ContainsCode(converted) {
		return false, types.NewMappingError("Code \"%v\" is not a valid option of \"%s\" for tracked entity type attribute \"%s\".",
			value, attribute.OptionSet.Name, attribute.Name)
	}

	a := t.entity.GetAttribute(attribute.ID)
	if lu != nil && a.LastUpdated != nil && a.LastUpdated.After(*lu) && a.StoredBy != t.username {
		return false, nil
	}
	if converted != a.Value {
		a.SetModified()
	}
	a.Value = converted
	return true, nil
}

func (t *WritableScriptedTrackedEntity) IsModified() bool {
	return t.entity.IsModified()
}

func (t *WritableScriptedTrackedEntity) Validate() error {
	if t.entity.OrgUnitID == "" {
		return types.NewDataError("Organization unit ID of tracked entity has not been specified.")
	}
	if t.entity.TypeID == "" {
		return types.NewDataError("Type of tracked entity has not been specified.")
	}
	return nil
}

func (t *WritableScriptedTrackedEntity) attribute(ref interface{}) (*tracker.TrackedEntityAttribute, error) {
	r, err := parseReference(ref)
	if err != nil {
		return nil, err
	}
	a, ok := t.definition.FindAttribute(r)
	if !ok {
		return nil, types.NewMappingError("Tracked entity type \"%s\" does not include attribute \"%s\"", t.definition.Name, r)
	}
	return a, nil
}
