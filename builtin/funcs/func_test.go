/*
 * Copyright 2024 The RuleGo Authors.
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

package funcs

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeRepository map[string][]string

func (r codeRepository) FindSystemCodes(ctx context.Context, mappingCode string) ([]string, error) {
	return r[mappingCode], nil
}

func fixedNow() time.Time {
	return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
}

func TestRegistry(t *testing.T) {
	all := NewAll(Deps{Config: types.NewConfig()})
	var names []string
	for _, u := range all {
		names = append(names, u.ScriptAttrName())
		assert.Equal(t, types.FhirVersions, u.Versions())
	}
	assert.ElementsMatch(t, RequiredNames, names)

	_, ok := Utils.Get(CodeUtilsName)
	assert.True(t, ok)
	_, ok = Utils.Get("groovyUtils")
	assert.False(t, ok)
}

func TestCodeUtils(t *testing.T) {
	u := NewCodeUtils(codeRepository{"VACCINE_MMR": {"http://snomed.info/sct|38598009"}})
	cc := fhir.CodeableConcept{Coding: []fhir.Coding{
		{System: "http://loinc.org", Code: "29463-7"},
		{System: "http://snomed.info/sct", Code: "38598009"},
	}}

	t.Run("SystemCodeValues", func(t *testing.T) {
		assert.Equal(t, []string{"http://loinc.org|29463-7", "http://snomed.info/sct|38598009"}, u.GetSystemCodeValues(cc))
		assert.Equal(t, []string{}, u.GetSystemCodeValues(nil))
	})

	t.Run("GetCode", func(t *testing.T) {
		code, err := u.GetCode(&cc, "http://loinc.org")
		assert.Nil(t, err)
		assert.Equal(t, "29463-7", code)
		code, err = u.GetCode(cc, "http://other")
		assert.Nil(t, err)
		assert.Nil(t, code)
		_, err = u.GetCode(cc, "")
		assert.True(t, errors.Is(err, types.ErrMappingConfiguration))
	})

	t.Run("ScriptObject", func(t *testing.T) {
		obj := map[string]interface{}{
			"coding": []interface{}{map[string]interface{}{"system": "http://loinc.org", "code": "8302-2"}},
		}
		assert.True(t, u.ContainsCode(obj, "http://loinc.org", "8302-2"))
	})

	t.Run("MappingCode", func(t *testing.T) {
		ok, err := u.ContainsMappingCode(cc, []interface{}{"VACCINE_DTP", "VACCINE_MMR"})
		assert.Nil(t, err)
		assert.True(t, ok)
		ok, err = u.ContainsMappingCode(cc, "VACCINE_DTP")
		assert.Nil(t, err)
		assert.False(t, ok)
		_, err = u.ContainsMappingCode(cc, nil)
		assert.True(t, errors.Is(err, types.ErrMappingConfiguration))
	})
}

func TestDateTimeUtils(t *testing.T) {
	u := &DateTimeUtils{now: fixedNow}
	assert.True(t, u.IsValidNow(nil))
	assert.True(t, u.IsValidNow(&fhir.Period{Start: "2024-01-01"}))
	assert.False(t, u.IsValidNow(&fhir.Period{Start: "2024-07-01"}))
	assert.False(t, u.IsValidNow(fhir.Period{End: "2024-06-01T00:00:00Z"}))

	d, err := u.GetPreciseDate("2024-05")
	assert.Nil(t, err)
	assert.Nil(t, d)
	d, err = u.GetPreciseDate("2024-05-03")
	assert.Nil(t, err)
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), d)
	_, err = u.ToDate("someday")
	assert.True(t, errors.Is(err, types.ErrData))

	age, err := u.GetAge("2000-06-16")
	assert.Nil(t, err)
	assert.Equal(t, 23, age)
	age, err = u.GetAge("2000-06-15")
	assert.Nil(t, err)
	assert.Equal(t, 24, age)
}

func TestContactPointUtils(t *testing.T) {
	u := &ContactPointUtils{now: fixedNow}

	t.Run("PreferCurrentUseAndLowestRank", func(t *testing.T) {
		telecom := []fhir.ContactPoint{
			{System: "phone", Value: "111", Use: "old", Rank: 1},
			{System: "phone", Value: "222", Use: "temp", Rank: 1},
			{System: "phone", Value: "333", Rank: 2},
			{System: "phone", Value: "444", Use: "home", Rank: 1},
			{System: "email", Value: "a@example.org"},
		}
		assert.Equal(t, "444", u.GetPhone(telecom))
		assert.Equal(t, "a@example.org", u.GetEmail(telecom))
	})

	t.Run("TieBreaksOnValue", func(t *testing.T) {
		telecom := []fhir.ContactPoint{
			{System: "PHONE", Value: "999", Rank: 1},
			{System: "phone", Value: "123", Rank: 1},
		}
		for i := 0; i < 5; i++ {
			assert.Equal(t, "123", u.GetPhone(telecom))
		}
	})

	t.Run("SkipsExpiredAndEmpty", func(t *testing.T) {
		telecom := []fhir.ContactPoint{
			{System: "phone", Value: "111", Period: &fhir.Period{End: "2023-01-01"}},
			{System: "phone", Value: ""},
			{System: "phone", Value: "222", Use: "old"},
		}
		assert.Equal(t, "222", u.GetPhone(telecom))
		assert.Nil(t, u.GetEmail(telecom))
		assert.Nil(t, u.GetPhone(nil))
	})
}

func quantity(value float64, code string) *fhir.Quantity {
	return &fhir.Quantity{Value: &value, System: UnitSystem, Code: code}
}

func TestVitalSignUtils(t *testing.T) {
	u := NewVitalSignUtils()

	t.Run("Weight", func(t *testing.T) {
		v, err := u.GetWeight(quantity(10, "[lb_av]"), "KILO_GRAM", false)
		assert.Nil(t, err)
		assert.InDelta(t, 4.5359237, v, 1e-9)
		v, err = u.GetWeight(quantity(2.5, "kg"), "gram", true)
		assert.Nil(t, err)
		assert.Equal(t, 2500.0, v)
	})

	t.Run("Height", func(t *testing.T) {
		v, err := u.GetHeight(quantity(6, "[ft_i]"), "centi_meter", false)
		assert.Nil(t, err)
		assert.InDelta(t, 182.88, v, 1e-9)
		v, err = u.GetHeight(quantity(1.8, "m"), "INCH", true)
		assert.Nil(t, err)
		assert.Equal(t, 71.0, v)
	})

	t.Run("Errors", func(t *testing.T) {
		v, err := u.GetWeight(nil, "KILO_GRAM", false)
		assert.Nil(t, err)
		assert.Nil(t, v)

		_, err = u.GetWeight(quantity(1, "kg"), nil, false)
		assert.True(t, errors.Is(err, types.ErrMappingConfiguration))
		var terr *types.TransformerError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, "Weight unit has not been specified.", terr.Msg)

		_, err = u.GetWeight(quantity(1, "kg"), "STONE", false)
		assert.True(t, errors.Is(err, types.ErrMappingConfiguration))

		_, err = u.GetWeight("80", "KILO_GRAM", false)
		assert.True(t, errors.Is(err, types.ErrData))

		_, err = u.GetWeight(&fhir.Quantity{System: "http://other", Code: "kg"}, "KILO_GRAM", false)
		assert.True(t, errors.Is(err, types.ErrData))

		_, err = u.GetHeight(quantity(1, "km"), "METER", false)
		assert.True(t, errors.Is(err, types.ErrData))

		v, err = u.GetHeight(&fhir.Quantity{System: UnitSystem, Code: "cm"}, "METER", false)
		assert.Nil(t, err)
		assert.Nil(t, v)
	})

	t.Run("ScriptQuantity", func(t *testing.T) {
		v, err := u.GetWeight(map[string]interface{}{"value": 1500.0, "system": UnitSystem, "code": "g"}, "KILO_GRAM", false)
		assert.Nil(t, err)
		assert.Equal(t, 1.5, v)
	})
}

func TestUnitConversionRoundTrip(t *testing.T) {
	for _, a := range WeightUnits {
		for _, b := range WeightUnits {
			t.Run(a.Name+"_"+b.Name, func(t *testing.T) {
				back := ConvertWeight(ConvertWeight(72.35, a, b), b, a)
				assert.True(t, math.Abs(back-72.35) < 1e-9)
			})
		}
	}
	for _, a := range HeightUnits {
		for _, b := range HeightUnits {
			t.Run(a.Name+"_"+b.Name, func(t *testing.T) {
				back := ConvertHeight(ConvertHeight(181.4, a, b), b, a)
				assert.True(t, math.Abs(back-181.4) < 1e-9)
			})
		}
	}
}

type datedEvent struct {
	date *time.Time
}

func (e datedEvent) GetEventDate() *time.Time { return e.date }

func TestProgramStageUtils(t *testing.T) {
	u := NewProgramStageUtils()
	day := time.Date(2024, 3, 5, 15, 30, 0, 0, time.UTC)
	events := []interface{}{datedEvent{}, datedEvent{date: &day}}

	ok, err := u.ContainsEventDay(events, "2024-03-05")
	require.Nil(t, err)
	assert.True(t, ok)
	ok, err = u.ContainsEventDay(events, "2024-03-06")
	require.Nil(t, err)
	assert.False(t, ok)

	ok, err = u.ContainsEventDay([]*tracker.Event{{EventDate: &day}}, day)
	require.Nil(t, err)
	assert.True(t, ok)

	_, err = u.ContainsEventDay(events, "soon")
	assert.True(t, errors.Is(err, types.ErrData))
}

func TestIdentifierUtils(t *testing.T) {
	u := NewIdentifierUtils()
	ids := []fhir.Identifier{
		{System: "http://example.org/mrn", Value: "MRN-1"},
		{System: "http://example.org/national", Value: "N-9"},
	}
	assert.Equal(t, "N-9", u.GetIdentifierValue(ids, "http://example.org/national"))
	assert.Nil(t, u.GetIdentifierValue(ids, "http://example.org/other"))
	assert.Equal(t, "123", u.GetReferenceId(&fhir.Reference{Reference: "Patient/123/_history/2"}))
	assert.Equal(t, "abc", u.GetReferenceId("Organization/abc"))
	assert.Nil(t, u.GetReferenceId(nil))
}
