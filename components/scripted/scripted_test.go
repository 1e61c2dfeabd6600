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
	"errors"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStage() (*tracker.Program, *tracker.ProgramStage) {
	stage := &tracker.ProgramStage{
		ID:   "ps1",
		Code: "VITAL_SIGNS",
		Name: "Vital Signs",
		DataElements: []*tracker.ProgramStageDataElement{
			{Element: &tracker.DataElement{ID: "de1", Code: "WEIGHT", Name: "Weight", ValueType: tracker.ValueNumber}, AllowProvidedElsewhere: true},
			{Element: &tracker.DataElement{ID: "de2", Code: "SMOKER", Name: "Smoker", ValueType: tracker.ValueBoolean}},
			{Element: &tracker.DataElement{ID: "de3", Code: "APGAR", Name: "Apgar", ValueType: tracker.ValueText,
				OptionSet: &tracker.OptionSet{Name: "Apgar Score", Options: []tracker.Option{
					{Code: "2"}, {Code: "0"}, {Code: "1"}, {Code: "unknown"},
				}}}},
		},
	}
	return &tracker.Program{ID: "p1", Name: "Child", Stages: []*tracker.ProgramStage{stage}}, stage
}

func mappingMsg(t *testing.T, err error) string {
	var terr *types.TransformerError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, types.ErrMappingConfiguration, terr.Kind)
	return terr.Msg
}

func TestWritableScriptedEvent(t *testing.T) {
	program, stage := testStage()

	t.Run("Dates", func(t *testing.T) {
		event := &tracker.Event{}
		e := NewWritableScriptedEvent(program, stage, event, "admin")
		ok, err := e.SetEventDate("2024-03-01T10:00:00Z")
		require.Nil(t, err)
		assert.True(t, ok)
		assert.True(t, e.IsModified())

		same := event.Clone()
		e = NewWritableScriptedEvent(program, stage, same, "admin")
		ok, err = e.SetEventDate(*event.EventDate)
		require.Nil(t, err)
		assert.True(t, ok)
		assert.False(t, e.IsModified())

		ok, err = e.SetDueDate(nil)
		require.Nil(t, err)
		assert.False(t, ok)
	})

	t.Run("Status", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{Status: tracker.EventActive}, "")
		ok, err := e.SetStatus("active")
		require.Nil(t, err)
		assert.True(t, ok)
		assert.False(t, e.IsModified())

		ok, err = e.SetStatus("completed")
		require.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, "COMPLETED", e.GetStatus())
		assert.True(t, e.IsModified())

		_, err = e.SetStatus("DONE")
		var terr *types.TransformerError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, types.ErrScriptExecution, terr.Kind)
		assert.Equal(t, "Event status has not been defined: DONE", terr.Msg)
	})

	t.Run("SetValue", func(t *testing.T) {
		event := &tracker.Event{}
		e := NewWritableScriptedEvent(program, stage, event, "admin")
		ok, err := e.SetValue("CODE:WEIGHT", 72.5)
		require.Nil(t, err)
		assert.True(t, ok)
		v, err := e.GetValue("WEIGHT")
		require.Nil(t, err)
		assert.Equal(t, "72.5", v)
		assert.True(t, e.IsAnyDataValueModified())

		// unchanged value leaves the event untouched
		clean := event.Clone()
		clean.DataValues[0] = &tracker.DataValue{DataElementID: "de1", Value: "72.5", HasValue: true}
		e = NewWritableScriptedEvent(program, stage, clean, "admin")
		ok, err = e.SetValue("WEIGHT", "72.5")
		require.Nil(t, err)
		assert.True(t, ok)
		assert.False(t, e.IsModified())

		ok, err = e.SetValue("WEIGHT", 80, nil, false, nil)
		require.Nil(t, err)
		assert.False(t, ok)
		v, _ = e.GetValue("ID:de1")
		assert.Equal(t, "72.5", v)

		ok, err = e.SetValue("SMOKER", "yes")
		assert.False(t, ok)
		assert.Contains(t, mappingMsg(t, err), `Value of data element "Smoker" could not be converted`)

		ok, err = e.SetValue("SMOKER", true)
		require.Nil(t, err)
		assert.True(t, ok)
		b, err := e.GetBooleanValue("SMOKER")
		require.Nil(t, err)
		assert.Equal(t, true, b)
	})

	t.Run("ProvidedElsewhere", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{}, "")
		_, err := e.SetValue("WEIGHT", 70, true)
		require.Nil(t, err)
		pe, err := e.IsProvidedElsewhere("WEIGHT")
		require.Nil(t, err)
		assert.True(t, pe)

		_, err = e.SetValue("SMOKER", false, true)
		require.Nil(t, err)
		pe, _ = e.IsProvidedElsewhere("SMOKER")
		assert.False(t, pe)
	})

	t.Run("LastUpdated", func(t *testing.T) {
		newer := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		older := newer.Add(-24 * time.Hour)
		event := &tracker.Event{DataValues: []*tracker.DataValue{
			{DataElementID: "de1", Value: "60", HasValue: true, LastUpdated: &newer, StoredBy: "nurse"},
		}}
		e := NewWritableScriptedEvent(program, stage, event, "admin")
		ok, err := e.SetValue("WEIGHT", 61, nil, older)
		require.Nil(t, err)
		assert.False(t, ok)

		event.DataValues[0].StoredBy = "admin"
		ok, err = e.SetValue("WEIGHT", 61, nil, older)
		require.Nil(t, err)
		assert.True(t, ok)
		v, _ := e.GetIntegerValue("WEIGHT")
		assert.Equal(t, 61, v)
	})

	t.Run("UnknownDataElement", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{}, "")
		_, err := e.GetValue("HEIGHT")
		assert.Equal(t, `Program stage "Vital Signs" does not include data element "CODE:HEIGHT"`, mappingMsg(t, err))
	})

	t.Run("OptionSet", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{}, "")
		_, err := e.SetValue("APGAR", "7")
		assert.Equal(t, `Code "7" is not a valid option of "Apgar Score" for data element "Apgar".`, mappingMsg(t, err))

		_, err = e.GetIntegerOptionValue("WEIGHT", 0, "")
		assert.Equal(t, `Data element "WEIGHT" is not an option set.`, mappingMsg(t, err))
	})

	t.Run("IntegerOption", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{}, "")
		v, err := e.GetIntegerOptionValue("APGAR", 0, "")
		require.Nil(t, err)
		assert.Nil(t, v)

		ok, err := e.SetIntegerOptionValue("APGAR", 2, 1, true, "", nil)
		require.Nil(t, err)
		assert.True(t, ok)
		raw, _ := e.GetValue("APGAR")
		assert.Equal(t, "1", raw)
		v, err = e.GetIntegerOptionValue("APGAR", 1, "")
		require.Nil(t, err)
		assert.Equal(t, 2, v)

		// capped to the highest option
		ok, _ = e.SetIntegerOptionValue("APGAR", 10, 0, true, "", nil)
		assert.True(t, ok)
		raw, _ = e.GetValue("APGAR")
		assert.Equal(t, "2", raw)

		ok, _ = e.SetIntegerOptionValue("APGAR", 1, 0, false, "", nil)
		assert.False(t, ok)
		ok, _ = e.SetIntegerOptionValue("APGAR", 0, 1, true, "", nil)
		assert.False(t, ok)
	})

	t.Run("Validate", func(t *testing.T) {
		now := time.Now()
		event := &tracker.Event{}
		e := NewWritableScriptedEvent(program, stage, event, "")
		assert.Equal(t, "Organization unit ID of event has not been specified.", dataMsg(t, e.Validate()))
		event.OrgUnitID = "ou1"
		assert.Equal(t, "Event date of event has not been specified.", dataMsg(t, e.Validate()))
		event.EventDate = &now
		assert.Equal(t, "Due date of event has not been specified.", dataMsg(t, e.Validate()))
		event.DueDate = &now
		assert.Nil(t, e.Validate())
	})

	t.Run("Coordinate", func(t *testing.T) {
		e := NewWritableScriptedEvent(program, stage, &tracker.Event{}, "")
		ok, err := e.SetCoordinate(map[string]interface{}{"longitude": 10.5, "latitude": 47.1})
		require.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, &tracker.Location{Longitude: 10.5, Latitude: 47.1}, e.GetCoordinate())
		_, err = e.SetCoordinate("north")
		assert.NotNil(t, err)
	})
}

func dataMsg(t *testing.T, err error) string {
	var terr *types.TransformerError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, types.ErrData, terr.Kind)
	return terr.Msg
}

func TestWritableScriptedTrackedEntity(t *testing.T) {
	definition := &tracker.TrackedEntityTypeDefinition{ID: "te1", Name: "Person", Attributes: []*tracker.TrackedEntityAttribute{
		{ID: "a1", Code: "NATIONAL_ID", Name: "National ID", ValueType: tracker.ValueText, Unique: true},
		{ID: "a2", Code: "BIRTH_DATE", Name: "Birth date", ValueType: tracker.ValueDate},
		{ID: "a3", Code: "UID", Name: "Generated", ValueType: tracker.ValueText, Generated: true},
	}}
	entity := &tracker.TrackedEntity{TypeID: "te1", NewResource: true}
	te := NewWritableScriptedTrackedEntity(definition, entity, "admin")

	ok, err := te.SetValue("NATIONAL_ID", "X-1")
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = te.SetValue("BIRTH_DATE", "2011-10-03T08:00:00Z")
	require.Nil(t, err)
	assert.True(t, ok)
	v, _ := te.GetValue("BIRTH_DATE")
	assert.Equal(t, "2011-10-03", v)
	assert.True(t, te.IsModified())

	_, err = te.SetValue("UID", "abc")
	assert.NotNil(t, err)
	_, err = te.SetValue("NAME:Unknown", "abc")
	assert.Equal(t, `Tracked entity type "Person" does not include attribute "NAME:Unknown"`, mappingMsg(t, err))

	assert.Equal(t, "Organization unit ID of tracked entity has not been specified.", dataMsg(t, te.Validate()))
	assert.True(t, te.SetOrganizationUnitId("ou1"))
	assert.Nil(t, te.Validate())
}

func TestWritableScriptedEnrollment(t *testing.T) {
	program, _ := testStage()
	enrollment := &tracker.Enrollment{}
	e := NewWritableScriptedEnrollment(program, enrollment)
	assert.Equal(t, "p1", e.GetProgramId())

	ok, err := e.SetEnrollmentDate("2024-01-02")
	require.Nil(t, err)
	assert.True(t, ok)
	_, err = e.SetIncidentDate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Nil(t, err)
	_, err = e.SetStatus("Active")
	require.Nil(t, err)
	assert.Equal(t, tracker.EnrollmentActive, enrollment.Status)
	assert.Equal(t, "Organization unit ID of enrollment has not been specified.", dataMsg(t, e.Validate()))
	e.SetOrganizationUnitId("ou1")
	assert.Nil(t, e.Validate())
	assert.True(t, e.IsModified())
}

func TestInputs(t *testing.T) {
	weight := 70.0
	obs := &fhir.Observation{ID: "o1", ValueQuantity: &fhir.Quantity{Value: &weight}}
	input := NewFhirInput(obs)
	assert.Equal(t, "Observation/o1", input.Key())

	clone := input.Clone()
	*clone.Value().(*fhir.Observation).ValueQuantity.Value = 80
	assert.Equal(t, 70.0, *obs.ValueQuantity.Value)

	te := &tracker.TrackedEntity{ID: "t1", OrgUnitID: "ou1", Attributes: []*tracker.Attribute{{AttributeID: "a1", Value: "X"}}}
	tinput := NewTrackerInput(te)
	assert.Equal(t, "TRACKED_ENTITY/t1", tinput.Key())
	view := tinput.Value().(*ImmutableScriptedResource)
	assert.Equal(t, "X", view.GetValue("a1"))
	assert.Nil(t, view.GetValue("a2"))
	assert.Equal(t, "ou1", view.GetOrganizationUnitId())
	assert.NotSame(t, te, tinput.Clone().(*TrackerInput).Resource)
}
