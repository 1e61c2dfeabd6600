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
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
)

const IdentifierUtilsName = "identifierUtils"

type IdentifierUtils struct{}

func NewIdentifierUtils() *IdentifierUtils {
	return &IdentifierUtils{}
}

func (u *IdentifierUtils) ScriptAttrName() string        { return IdentifierUtilsName }
func (u *IdentifierUtils) Versions() []types.FhirVersion { return allVersions() }

// GetIdentifierValue returns the value of the first identifier of system, nil when there is none.
func (u *IdentifierUtils) GetIdentifierValue(identifiers interface{}, system string) interface{} {
	v, ok := IdentifierValue(toIdentifiers(identifiers), system)
	if !ok {
		return nil
	}
	return v
}

// GetReferenceId returns the id part of a reference such as "Patient/123".
func (u *IdentifierUtils) GetReferenceId(reference interface{}) interface{} {
	var id string
	switch r := reference.(type) {
	case *fhir.Reference:
		id = r.ResourceID()
	case fhir.Reference:
		id = r.ResourceID()
	case string:
		id = (&fhir.Reference{Reference: r}).ResourceID()
	}
	if id == "" {
		return nil
	}
	return id
}

// IdentifierValue returns the value of the first identifier of system. An
// empty system selects the first identifier without system.
func IdentifierValue(identifiers []fhir.Identifier, system string) (string, bool) {
	for _, id := range identifiers {
		if id.System == system && id.Value != "" {
			return id.Value, true
		}
	}
	return "", false
}
