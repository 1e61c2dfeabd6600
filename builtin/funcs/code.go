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
	"context"
	"strings"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/cast"
)

const CodeUtilsName = "codeUtils"

// CodeUtils looks up codes in codeable concepts. Codes are written as "system|code".
type CodeUtils struct {
	codes types.CodeRepository
}

func NewCodeUtils(codes types.CodeRepository) *CodeUtils {
	return &CodeUtils{codes: codes}
}

func (u *CodeUtils) ScriptAttrName() string        { return CodeUtilsName }
func (u *CodeUtils) Versions() []types.FhirVersion { return allVersions() }

// GetSystemCodeValues returns every coding of the concept as "system|code".
func (u *CodeUtils) GetSystemCodeValues(codeableConcept interface{}) []string {
	cc, ok := toCodeableConcept(codeableConcept)
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(cc.Coding))
	for _, c := range cc.Coding {
		result = append(result, c.System+"|"+c.Code)
	}
	return result
}

// GetCode returns the code of the first coding with the system.
func (u *CodeUtils) GetCode(codeableConcept interface{}, system string) (interface{}, error) {
	if system == "" {
		return nil, types.NewMappingError("System must be specified.")
	}
	cc, ok := toCodeableConcept(codeableConcept)
	if !ok {
		return nil, nil
	}
	for _, c := range cc.Coding {
		if c.System == system {
			return c.Code, nil
		}
	}
	return nil, nil
}

// ContainsCode reports whether the concept includes the code. An empty system matches codings without system.
func (u *CodeUtils) ContainsCode(codeableConcept interface{}, system string, code string) bool {
	cc, ok := toCodeableConcept(codeableConcept)
	if !ok {
		return false
	}
	for _, c := range cc.Coding {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

// ContainsMappingCode reports whether the concept includes one of the
// system codes that the adapter mapping codes stand for.
func (u *CodeUtils) ContainsMappingCode(codeableConcept interface{}, mappingCodes interface{}) (bool, error) {
	if mappingCodes == nil {
		return false, types.NewMappingError("Codes must be specified.")
	}
	cc, ok := toCodeableConcept(codeableConcept)
	if !ok || len(cc.Coding) == 0 {
		return false, nil
	}
	var codes []string
	if s, ok := mappingCodes.(string); ok {
		codes = []string{s}
	} else {
		forEach(mappingCodes, func(item interface{}) {
			codes = append(codes, cast.ToString(item))
		})
	}
	if u.codes == nil {
		return false, types.NewFatalError("no code repository has been configured")
	}
	for _, mappingCode := range codes {
		systemCodes, err := u.codes.FindSystemCodes(context.Background(), mappingCode)
		if err != nil {
			return false, err
		}
		for _, sc := range systemCodes {
			idx := strings.LastIndexByte(sc, '|')
			if idx < 0 {
				continue
			}
			if u.ContainsCode(cc, sc[:idx], sc[idx+1:]) {
				return true, nil
			}
		}
	}
	return false, nil
}

// ExtractCodes returns the "system|code" values of a FHIR resource's primary
// code, used by rule resolution to narrow candidates.
func ExtractCodes(codeableConcept interface{}) []string {
	return (&CodeUtils{}).GetSystemCodeValues(codeableConcept)
}
