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

package funcs

import (
	"math"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/utils/str"
)

const VitalSignUtilsName = "vitalSignUtils"

// UnitSystem is the UCUM code system quantities must use.
const UnitSystem = "http://unitsofmeasure.org"

// WeightUnit 重量单位，Factor为换算成克的系数
type WeightUnit struct {
	Name   string
	Ucum   string
	Factor float64
}

var (
	KiloGram = WeightUnit{Name: "KILO_GRAM", Ucum: "kg", Factor: 1000}
	Gram     = WeightUnit{Name: "GRAM", Ucum: "g", Factor: 1}
	Pound    = WeightUnit{Name: "POUND", Ucum: "[lb_av]", Factor: 453.59237}
)

var WeightUnits = []WeightUnit{KiloGram, Gram, Pound}

// HeightUnit 长度单位，Factor为换算成厘米的系数
type HeightUnit struct {
	Name   string
	Ucum   string
	Factor float64
}

var (
	Meter      = HeightUnit{Name: "METER", Ucum: "m", Factor: 100}
	CentiMeter = HeightUnit{Name: "CENTI_METER", Ucum: "cm", Factor: 1}
	MilliMeter = HeightUnit{Name: "MILLI_METER", Ucum: "mm", Factor: 0.1}
	Inch       = HeightUnit{Name: "INCH", Ucum: "[in_i]", Factor: 2.54}
	Foot       = HeightUnit{Name: "FOOT", Ucum: "[ft_i]", Factor: 30.48}
)

var HeightUnits = []HeightUnit{Meter, CentiMeter, MilliMeter, Inch, Foot}

// ParseWeightUnit accepts the unit name ignoring case and underscores.
func ParseWeightUnit(name string) (WeightUnit, bool) {
	n := str.NormalizeEnumName(name)
	for _, u := range WeightUnits {
		if str.NormalizeEnumName(u.Name) == n {
			return u, true
		}
	}
	return WeightUnit{}, false
}

func WeightUnitByUcum(code string) (WeightUnit, bool) {
	for _, u := range WeightUnits {
		if u.Ucum == code {
			return u, true
		}
	}
	return WeightUnit{}, false
}

// ParseHeightUnit accepts the unit name ignoring case and underscores.
func ParseHeightUnit(name string) (HeightUnit, bool) {
	n := str.NormalizeEnumName(name)
	for _, u := range HeightUnits {
		if str.NormalizeEnumName(u.Name) == n {
			return u, true
		}
	}
	return HeightUnit{}, false
}

func HeightUnitByUcum(code string) (HeightUnit, bool) {
	for _, u := range HeightUnits {
		if u.Ucum == code {
			return u, true
		}
	}
	return HeightUnit{}, false
}

func ConvertWeight(value float64, from, to WeightUnit) float64 {
	return value * from.Factor / to.Factor
}

func ConvertHeight(value float64, from, to HeightUnit) float64 {
	return value * from.Factor / to.Factor
}

// VitalSignUtils converts body weight and height quantities to a requested unit.
type VitalSignUtils struct{}

func NewVitalSignUtils() *VitalSignUtils {
	return &VitalSignUtils{}
}

func (u *VitalSignUtils) ScriptAttrName() string        { return VitalSignUtilsName }
func (u *VitalSignUtils) Versions() []types.FhirVersion { return allVersions() }

// GetWeight returns the quantity converted to weightUnit, nil when value or its amount is missing.
func (u *VitalSignUtils) GetWeight(value interface{}, weightUnit interface{}, round bool) (interface{}, error) {
	if isNilQuantity(value) {
		return nil, nil
	}
	if weightUnit == nil {
		return nil, types.NewMappingError("Weight unit has not been specified.")
	}
	name, _ := weightUnit.(string)
	target, ok := ParseWeightUnit(name)
	if !ok {
		return nil, types.NewMappingError("Specified weight unit is invalid: %v", weightUnit)
	}
	q, ok := toQuantity(value)
	if !ok {
		return nil, types.NewDataError("Weight must be included as quantity, but element is %T.", value)
	}
	if q.System != UnitSystem {
		return nil, types.NewDataError("%s is expected as unit system: %s", UnitSystem, q.System)
	}
	actual, ok := WeightUnitByUcum(q.Code)
	if !ok {
		return nil, types.NewDataError("Unknown UCUM weight unit code: %s", q.Code)
	}
	if q.Value == nil {
		return nil, nil
	}
	return roundIf(ConvertWeight(*q.Value, actual, target), round), nil
}

// GetHeight returns the quantity converted to heightUnit, nil when value or its amount is missing.
func (u *VitalSignUtils) GetHeight(value interface{}, heightUnit interface{}, round bool) (interface{}, error) {
	if isNilQuantity(value) {
		return nil, nil
	}
	if heightUnit == nil {
		return nil, types.NewMappingError("Height unit has not been specified.")
	}
	name, _ := heightUnit.(string)
	target, ok := ParseHeightUnit(name)
	if !ok {
		return nil, types.NewMappingError("Specified height unit is invalid: %v", heightUnit)
	}
	q, ok := toQuantity(value)
	if !ok {
		return nil, types.NewDataError("Height must be included as quantity, but element is %T.", value)
	}
	if q.System != UnitSystem {
		return nil, types.NewDataError("%s is expected as unit system: %s", UnitSystem, q.System)
	}
	actual, ok := HeightUnitByUcum(q.Code)
	if !ok {
		return nil, types.NewDataError("Unknown UCUM height unit code: %s", q.Code)
	}
	if q.Value == nil {
		return nil, nil
	}
	return roundIf(ConvertHeight(*q.Value, actual, target), round), nil
}

func isNilQuantity(value interface{}) bool {
	if value == nil {
		return true
	}
	q, ok := value.(*fhir.Quantity)
	return ok && q == nil
}

func roundIf(v float64, round bool) float64 {
	if round {
		return math.Round(v)
	}
	return v
}
