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

// Package funcs provides the utility objects exposed to mapping scripts.
// Each utility registers a factory under its script attribute name.
package funcs

import (
	"sort"
	"sync"

	"github.com/rulego/fhiradapter/api/types"
)

// Deps are the collaborators utility objects may use.
type Deps struct {
	Config types.Config
	Codes  types.CodeRepository
}

// Factory creates the utility object of one script attribute.
type Factory func(deps Deps) types.TransformerUtils

// Utils 内置脚本工具对象工厂
var Utils factoryMap

func init() {
	Utils.Register(CodeUtilsName, func(deps Deps) types.TransformerUtils { return NewCodeUtils(deps.Codes) })
	Utils.Register(DateTimeUtilsName, func(deps Deps) types.TransformerUtils { return NewDateTimeUtils() })
	Utils.Register(ContactPointUtilsName, func(deps Deps) types.TransformerUtils { return NewContactPointUtils() })
	Utils.Register(VitalSignUtilsName, func(deps Deps) types.TransformerUtils { return NewVitalSignUtils() })
	Utils.Register(ProgramStageUtilsName, func(deps Deps) types.TransformerUtils { return NewProgramStageUtils() })
	Utils.Register(IdentifierUtilsName, func(deps Deps) types.TransformerUtils { return NewIdentifierUtils() })
}

// RequiredNames are the attribute names every supported FHIR version must provide.
var RequiredNames = []string{
	CodeUtilsName,
	DateTimeUtilsName,
	ContactPointUtilsName,
	VitalSignUtilsName,
	ProgramStageUtilsName,
	IdentifierUtilsName,
}

// NewAll creates one utility object per registered factory, ordered by name.
func NewAll(deps Deps) []types.TransformerUtils {
	var result []types.TransformerUtils
	for _, name := range Utils.Names() {
		if f, ok := Utils.Get(name); ok {
			result = append(result, f(deps))
		}
	}
	return result
}

type factoryMap struct {
	v map[string]Factory
	sync.RWMutex
}

func (x *factoryMap) Register(name string, value Factory) {
	x.Lock()
	defer x.Unlock()
	if x.v == nil {
		x.v = make(map[string]Factory)
	}
	x.v[name] = value
}

func (x *factoryMap) UnRegister(name string) {
	x.Lock()
	defer x.Unlock()
	if x.v != nil {
		delete(x.v, name)
	}
}

func (x *factoryMap) Get(name string) (Factory, bool) {
	x.RLock()
	defer x.RUnlock()
	if x.v != nil {
		f, ok := x.v[name]
		return f, ok
	}
	return nil, false
}

// Names 返回排序后的名称
func (x *factoryMap) Names() []string {
	x.RLock()
	defer x.RUnlock()
	var keys = make([]string, 0, len(x.v))
	for k := range x.v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// allVersions is used by utilities that work the same way for every FHIR version.
func allVersions() []types.FhirVersion {
	return append([]types.FhirVersion(nil), types.FhirVersions...)
}
