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

// ValueType 数据元素值类型
type ValueType string

const (
	ValueText       ValueType = "TEXT"
	ValueLongText   ValueType = "LONG_TEXT"
	ValueInteger    ValueType = "INTEGER"
	ValueNumber     ValueType = "NUMBER"
	ValueBoolean    ValueType = "BOOLEAN"
	ValueTrueOnly   ValueType = "TRUE_ONLY"
	ValueDate       ValueType = "DATE"
	ValueDateTime   ValueType = "DATETIME"
	ValueCoordinate ValueType = "COORDINATE"
	ValuePhone      ValueType = "PHONE_NUMBER"
	ValueEmail      ValueType = "EMAIL"
)

type Option struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

type OptionSet struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Options []Option `json:"options" yaml:"options"`
}

// ContainsCode reports whether code is one of the option codes.
func (o *OptionSet) ContainsCode(code string) bool {
	for _, option := range o.Options {
		if option.Code == code {
			return true
		}
	}
	return false
}

type DataElement struct {
	ID        string     `json:"id" yaml:"id"`
	Code      string     `json:"code" yaml:"code"`
	Name      string     `json:"name" yaml:"name"`
	ValueType ValueType  `json:"valueType" yaml:"valueType"`
	OptionSet *OptionSet `json:"optionSet,omitempty" yaml:"optionSet"`
}

func (d *DataElement) IsOptionSetValue() bool {
	return d.OptionSet != nil
}

type ProgramStageDataElement struct {
	Element                *DataElement `json:"element" yaml:"element"`
	Compulsory             bool         `json:"compulsory" yaml:"compulsory"`
	AllowProvidedElsewhere bool         `json:"allowProvidedElsewhere" yaml:"allowProvidedElsewhere"`
}

type ProgramStage struct {
	ID           string                     `json:"id" yaml:"id"`
	Code         string                     `json:"code" yaml:"code"`
	Name         string                     `json:"name" yaml:"name"`
	Repeatable   bool                       `json:"repeatable" yaml:"repeatable"`
	DataElements []*ProgramStageDataElement `json:"dataElements" yaml:"dataElements"`
}

// FindDataElement 根据引用查找阶段中的数据元素
func (s *ProgramStage) FindDataElement(ref Reference) (*ProgramStageDataElement, bool) {
	for _, de := range s.DataElements {
		if de.Element != nil && ref.Matches(de.Element.ID, de.Element.Code, de.Element.Name) {
			return de, true
		}
	}
	return nil, false
}

type Program struct {
	ID                  string          `json:"id" yaml:"id"`
	Code                string          `json:"code" yaml:"code"`
	Name                string          `json:"name" yaml:"name"`
	TrackedEntityTypeID string          `json:"trackedEntityTypeId" yaml:"trackedEntityTypeId"`
	WithoutRegistration bool            `json:"withoutRegistration" yaml:"withoutRegistration"`
	Stages              []*ProgramStage `json:"stages" yaml:"stages"`
}

func (p *Program) FindStage(ref Reference) (*ProgramStage, bool) {
	for _, s := range p.Stages {
		if ref.Matches(s.ID, s.Code, s.Name) {
			return s, true
		}
	}
	return nil, false
}

type TrackedEntityAttribute struct {
	ID        string     `json:"id" yaml:"id"`
	Code      string     `json:"code" yaml:"code"`
	Name      string     `json:"name" yaml:"name"`
	ValueType ValueType  `json:"valueType" yaml:"valueType"`
	Unique    bool       `json:"unique" yaml:"unique"`
	Generated bool       `json:"generated" yaml:"generated"`
	OptionSet *OptionSet `json:"optionSet,omitempty" yaml:"optionSet"`
}

type TrackedEntityTypeDefinition struct {
	ID         string                    `json:"id" yaml:"id"`
	Code       string                    `json:"code" yaml:"code"`
	Name       string                    `json:"name" yaml:"name"`
	Attributes []*TrackedEntityAttribute `json:"attributes" yaml:"attributes"`
}

func (t *TrackedEntityTypeDefinition) FindAttribute(ref Reference) (*TrackedEntityAttribute, bool) {
	for _, a := range t.Attributes {
		if ref.Matches(a.ID, a.Code, a.Name) {
			return a, true
		}
	}
	return nil, false
}

type OrganizationUnit struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}
