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
	"github.com/rulego/fhiradapter/utils/cast"
	"github.com/rulego/fhiradapter/utils/str"
)

// WritableScriptedEvent is the program stage event exposed to import
// scripts. Setters only mark what really changed as modified, so that
// unchanged events are never written back.
type WritableScriptedEvent struct {
	program  *tracker.Program
	stage    *tracker.ProgramStage
	event    *tracker.Event
	username string
}

// NewWritableScriptedEvent wraps event. username is the tracker user the
// adapter writes as, empty when unknown.
func NewWritableScriptedEvent(program *tracker.Program, stage *tracker.ProgramStage, event *tracker.Event, username string) *WritableScriptedEvent {
	return &WritableScriptedEvent{program: program, stage: stage, event: event, username: username}
}

// Unwrap returns the wrapped event, for Go code only.
func (e *WritableScriptedEvent) Unwrap() *tracker.Event {
	return e.event
}

func (e *WritableScriptedEvent) GetId() string {
	return e.event.ID
}

func (e *WritableScriptedEvent) IsNewResource() bool {
	return e.event.NewResource
}

func (e *WritableScriptedEvent) GetOrganizationUnitId() string {
	return e.event.OrgUnitID
}

func (e *WritableScriptedEvent) SetOrganizationUnitId(id string) bool {
	if id != e.event.OrgUnitID {
		e.event.SetModified()
	}
	e.event.OrgUnitID = id
	return id != ""
}

func (e *WritableScriptedEvent) GetEventDate() *time.Time {
	return e.event.EventDate
}

func (e *WritableScriptedEvent) SetEventDate(date interface{}) (bool, error) {
	t, err := toTime(date)
	if err != nil {
		return false, err
	}
	if !equalTime(t, e.event.EventDate) {
		e.event.SetModified()
	}
	e.event.EventDate = t
	return t != nil, nil
}

func (e *WritableScriptedEvent) GetDueDate() *time.Time {
	return e.event.DueDate
}

func (e *WritableScriptedEvent) SetDueDate(date interface{}) (bool, error) {
	t, err := toTime(date)
	if err != nil {
		return false, err
	}
	if !equalTime(t, e.event.DueDate) {
		e.event.SetModified()
	}
	e.event.DueDate = t
	return t != nil, nil
}

func (e *WritableScriptedEvent) GetStatus() string {
	return string(e.event.Status)
}

func (e *WritableScriptedEvent) SetStatus(status interface{}) (bool, error) {
	var s tracker.EventStatus
	if status != nil {
		name := str.NormalizeEnumName(cast.ToString(status))
		for _, candidate := range tracker.EventStatuses {
			if str.NormalizeEnumName(string(candidate)) == name {
				s = candidate
				break
			}
		}
		if s == "" {
			return false, types.NewScriptError(nil, "Event status has not been defined: %v", status)
		}
	}
	if s != e.event.Status {
		e.event.SetModified()
	}
	e.event.Status = s
	return true, nil
}

func (e *WritableScriptedEvent) GetCoordinate() *tracker.Location {
	return e.event.Coordinate
}

func (e *WritableScriptedEvent) SetCoordinate(coordinate interface{}) (bool, error) {
	l, err := toLocation(coordinate)
	if err != nil {
		return false, err
	}
	if !equalLocation(l, e.event.Coordinate) {
		e.event.SetModified()
	}
	e.event.Coordinate = l
	return true, nil
}

// GetValue returns the current value of the data element, nil when unset.
func (e *WritableScriptedEvent) GetValue(ref interface{}) (interface{}, error) {
	de, err := e.dataElement(ref)
	if err != nil {
		return nil, err
	}
	dv, ok := e.event.FindDataValue(de.Element.ID)
	if !ok || !dv.HasValue {
		return nil, nil
	}
	return dv.Value, nil
}

func (e *WritableScriptedEvent) GetStringValue(ref interface{}) (interface{}, error) {
	return e.GetValue(ref)
}

func (e *WritableScriptedEvent) GetBooleanValue(ref interface{}) (interface{}, error) {
	v, err := e.GetValue(ref)
	if err != nil || v == nil {
		return nil, err
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return nil, types.NewDataError("value of data element %v is not a boolean: %s", ref, err)
	}
	return b, nil
}

func (e *WritableScriptedEvent) GetIntegerValue(ref interface{}) (interface{}, error) {
	v, err := e.GetValue(ref)
	if err != nil || v == nil {
		return nil, err
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return nil, types.NewDataError("value of data element %v is not an integer: %s", ref, err)
	}
	return i, nil
}

func (e *WritableScriptedEvent) IsProvidedElsewhere(ref interface{}) (bool, error) {
	de, err := e.dataElement(ref)
	if err != nil {
		return false, err
	}
	dv, ok := e.event.FindDataValue(de.Element.ID)
	return ok && dv.ProvidedElsewhere, nil
}

// SetValue sets a data element value. The optional arguments follow the
// script call forms:
//
//	setValue(ref, value)
//	setValue(ref, value, providedElsewhere)
//	setValue(ref, value, providedElsewhere, lastUpdated)
//	setValue(ref, value, providedElsewhere, override, lastUpdated)
func (e *WritableScriptedEvent) SetValue(ref interface{}, value interface{}, args ...interface{}) (bool, error) {
	de, err := e.dataElement(ref)
	if err != nil {
		return false, err
	}
	var providedElsewhere interface{}
	override := true
	var lastUpdated interface{}
	switch len(args) {
	case 0:
	case 1:
		providedElsewhere = args[0]
	case 2:
		providedElsewhere, lastUpdated = args[0], args[1]
	case 3:
		providedElsewhere, lastUpdated = args[0], args[2]
		if args[1] != nil {
			override = cast.ToBool(args[1])
		}
	default:
		return false, types.NewScriptError(nil, "setValue accepts at most 5 arguments")
	}
	var pe *bool
	if providedElsewhere != nil {
		b := cast.ToBool(providedElsewhere)
		pe = &b
	}
	lu, err := toTime(lastUpdated)
	if err != nil {
		return false, err
	}
	return e.setValue(de, value, pe, override, lu)
}

func (e *WritableScriptedEvent) setValue(de *tracker.ProgramStageDataElement, value interface{}, providedElsewhere *bool, override bool, lastUpdated *time.Time) (bool, error) {
	element := de.Element
	converted, hasValue, err := convertValue(value, element.ValueType)
	if err != nil {
		return false, types.NewMappingError("Value of data element \"%s\" could not be converted: %s", element.Name, err)
	}
	if hasValue && element.IsOptionSetValue() && !element.OptionSet.ContainsCode(converted) {
		return false, types.NewMappingError("Code \"%v\" is not a valid option of \"%s\" for data element \"%s\".",
			value, element.OptionSet.Name, element.Name)
	}

	dv := e.event.GetDataValue(element.ID)
	if !override && dv.HasValue {
		return false, nil
	}
	// values stored by the adapter itself are always overwritten
	if lastUpdated != nil && dv.LastUpdated != nil && dv.LastUpdated.After(*lastUpdated) && dv.StoredBy != e.username {
		return false, nil
	}

	if converted != dv.Value || hasValue != dv.HasValue {
		dv.SetModified()
	}
	if hasValue {
		dv.SetValue(converted)
	} else {
		dv.ClearValue()
	}

	if providedElsewhere != nil && de.AllowProvidedElsewhere {
		if *providedElsewhere != dv.ProvidedElsewhere {
			dv.SetModified()
		}
		dv.ProvidedElsewhere = *providedElsewhere
	}
	return true, nil
}

// GetIntegerOptionValue returns valueBase plus the position of the selected
// option among the integer options, nil when nothing valid is selected.
func (e *WritableScriptedEvent) GetIntegerOptionValue(ref interface{}, valueBase int, optionValuePattern string) (interface{}, error) {
	de, err := e.optionDataElement(ref)
	if err != nil {
		return nil, err
	}
	pattern, err := compilePattern(optionValuePattern)
	if err != nil {
		return nil, err
	}
	dv, ok := e.event.FindDataValue(de.Element.ID)
	if !ok || !dv.HasValue || dv.Value == "" {
		return nil, nil
	}
	codes := integerOptionCodes(de.Element.OptionSet, pattern)
	index := indexOf(codes, dv.Value)
	if index < 0 {
		return nil, nil
	}
	return valueBase + index, nil
}

// SetIntegerOptionValue selects the integer option at value-valueBase,
// capped to the last option. Without decrementAllowed a higher selected
// option is kept.
func (e *WritableScriptedEvent) SetIntegerOptionValue(ref interface{}, value int, valueBase int, decrementAllowed bool, optionValuePattern string, providedElsewhere interface{}) (bool, error) {
	de, err := e.optionDataElement(ref)
	if err != nil {
		return false, err
	}
	pattern, err := compilePattern(optionValuePattern)
	if err != nil {
		return false, err
	}
	if value < valueBase {
		return false, nil
	}
	codes := integerOptionCodes(de.Element.OptionSet, pattern)
	if len(codes) == 0 {
		return false, types.NewMappingError("Option set \"%s\" does not contain integer options.", de.Element.OptionSet.Name)
	}
	newIndex := value - valueBase
	if newIndex > len(codes)-1 {
		newIndex = len(codes) - 1
	}
	if !decrementAllowed && newIndex > 0 {
		if dv, ok := e.event.FindDataValue(de.Element.ID); ok && dv.HasValue {
			if indexOf(codes, dv.Value) > newIndex {
				return false, nil
			}
		}
	}
	var pe *bool
	if providedElsewhere != nil {
		b := cast.ToBool(providedElsewhere)
		pe = &b
	}
	if _, err := e.setValue(de, codes[newIndex], pe, true, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (e *WritableScriptedEvent) IsModified() bool {
	return e.event.IsModified()
}

func (e *WritableScriptedEvent) IsAnyDataValueModified() bool {
	return e.event.IsAnyDataValueModified()
}

// Validate checks that the event can be stored.
func (e *WritableScriptedEvent) Validate() error {
	if e.event.OrgUnitID == "" {
		return types.NewDataError("Organization unit ID of event has not been specified.")
	}
	if e.event.EventDate == nil {
		return types.NewDataError("Event date of event has not been specified.")
	}
	if e.event.DueDate == nil {
		return types.NewDataError("Due date of event has not been specified.")
	}
	return nil
}

func (e *WritableScriptedEvent) dataElement(ref interface{}) (*tracker.ProgramStageDataElement, error) {
	r, err := parseReference(ref)
	if err != nil {
		return nil, err
	}
	de, ok := e.stage.FindDataElement(r)
	if !ok {
		return nil, types.NewMappingError("Program stage \"%s\" does not include data element \"%s\"", e.stage.Name, r)
	}
	return de, nil
}

func (e *WritableScriptedEvent) optionDataElement(ref interface{}) (*tracker.ProgramStageDataElement, error) {
	de, err := e.dataElement(ref)
	if err != nil {
		return nil, err
	}
	if !de.Element.IsOptionSetValue() {
		return nil, types.NewMappingError("Data element \"%v\" is not an option set.", ref)
	}
	return de, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
