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
	"reflect"

	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/utils/json"
	"github.com/rulego/fhiradapter/utils/maps"
)

// Scripts hand over FHIR elements either as the Go values of the input
// resource or as plain objects they built themselves. The helpers below
// accept both forms.

func toCodeableConcept(v interface{}) (*fhir.CodeableConcept, bool) {
	switch c := v.(type) {
	case nil:
		return nil, false
	case fhir.CodeableConcept:
		return &c, true
	case *fhir.CodeableConcept:
		return c, c != nil
	}
	var c fhir.CodeableConcept
	if !decodeElement(v, &c) {
		return nil, false
	}
	return &c, true
}

func toQuantity(v interface{}) (*fhir.Quantity, bool) {
	switch q := v.(type) {
	case fhir.Quantity:
		return &q, true
	case *fhir.Quantity:
		return q, q != nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		var q fhir.Quantity
		if decodeElement(m, &q) {
			return &q, true
		}
	}
	return nil, false
}

func toPeriod(v interface{}) (*fhir.Period, bool) {
	switch p := v.(type) {
	case nil:
		return nil, false
	case fhir.Period:
		return &p, true
	case *fhir.Period:
		return p, p != nil
	}
	var p fhir.Period
	if !decodeElement(v, &p) {
		return nil, false
	}
	return &p, true
}

func toContactPoints(v interface{}) []fhir.ContactPoint {
	switch c := v.(type) {
	case nil:
		return nil
	case []fhir.ContactPoint:
		return c
	case []*fhir.ContactPoint:
		result := make([]fhir.ContactPoint, 0, len(c))
		for _, cp := range c {
			if cp != nil {
				result = append(result, *cp)
			}
		}
		return result
	}
	var result []fhir.ContactPoint
	if !decodeElement(v, &result) {
		return nil
	}
	return result
}

func toIdentifiers(v interface{}) []fhir.Identifier {
	switch c := v.(type) {
	case nil:
		return nil
	case []fhir.Identifier:
		return c
	}
	var result []fhir.Identifier
	if !decodeElement(v, &result) {
		return nil
	}
	return result
}

// decodeElement decodes maps and slices created by scripts. mapstructure
// matches the field names case insensitively, which covers the json names.
func decodeElement(v interface{}, out interface{}) bool {
	kind := reflect.TypeOf(v).Kind()
	if kind != reflect.Map && kind != reflect.Slice {
		return false
	}
	if err := maps.Map2Struct(v, out); err == nil {
		return true
	}
	// numbers of script objects may not fit the Go field type, fall back to json
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, out) == nil
}

// forEach calls fn for every element of a slice or array value.
func forEach(v interface{}, fn func(item interface{})) {
	if v == nil {
		return
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return
	}
	for i := 0; i < rv.Len(); i++ {
		fn(rv.Index(i).Interface())
	}
}
