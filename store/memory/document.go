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

// Package memory provides in-memory repositories: mapping metadata loaded
// from a YAML file, a tracker store, a queue store and stored resource markers.
package memory

import (
	"fmt"
	"os"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"gopkg.in/yaml.v3"
)

// Document is the YAML layout of a mapping metadata file.
type Document struct {
	TrackedEntityTypes []*tracker.TrackedEntityTypeDefinition `yaml:"trackedEntityTypes"`
	Programs           []*tracker.Program                     `yaml:"programs"`
	OrganizationUnits  []*tracker.OrganizationUnit            `yaml:"organizationUnits"`
	Scripts            []ScriptDoc                            `yaml:"scripts"`
	// Codes maps adapter codes to "system|code" values.
	Codes              map[string][]string `yaml:"codes"`
	Clients            []ClientDoc         `yaml:"clients"`
	TrackedEntityRules []RuleDoc           `yaml:"trackedEntityRules"`
	MappedPrograms     []ProgramDoc        `yaml:"mappedPrograms"`
	Stages             []StageDoc          `yaml:"mappedStages"`
	EnrollmentRules    []RuleDoc           `yaml:"enrollmentRules"`
	ProgramStageRules  []RuleDoc           `yaml:"programStageRules"`
}

type ScriptDoc struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Language string   `yaml:"language"`
	Code     string   `yaml:"code"`
	Versions []string `yaml:"versions"`
}

// ScriptRef is the usage of a script with its argument values.
type ScriptRef struct {
	Script string                 `yaml:"script"`
	Args   map[string]interface{} `yaml:"args"`
}

type ClientDoc struct {
	ID                  string            `yaml:"id"`
	Name                string            `yaml:"name"`
	FhirVersion         string            `yaml:"fhirVersion"`
	BaseURL             string            `yaml:"baseUrl"`
	Headers             map[string]string `yaml:"headers"`
	AuthorizationHeader string            `yaml:"authorizationHeader"`
	IdentifierSystem    string            `yaml:"identifierSystem"`
	TrackerUsername     string            `yaml:"trackerUsername"`
	Enabled             *bool             `yaml:"enabled"`
	Resources           []ResourceDoc     `yaml:"resources"`
}

type ResourceDoc struct {
	ID                 string `yaml:"id"`
	FhirResourceType   string `yaml:"fhirResourceType"`
	ExpOnly            bool   `yaml:"expOnly"`
	PreferredForExport bool   `yaml:"preferredForExport"`
	Criteria           string `yaml:"criteria"`
}

// FlagsDoc holds optional enablement flags; absent flags are enabled.
type FlagsDoc struct {
	Enabled           *bool `yaml:"enabled"`
	ImpEnabled        *bool `yaml:"impEnabled"`
	ExpEnabled        *bool `yaml:"expEnabled"`
	FhirCreateEnabled *bool `yaml:"fhirCreateEnabled"`
	FhirUpdateEnabled *bool `yaml:"fhirUpdateEnabled"`
	FhirDeleteEnabled *bool `yaml:"fhirDeleteEnabled"`
}

type ProgramDoc struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Program           string `yaml:"program"`
	TrackedEntityRule string `yaml:"trackedEntityRule"`
	CreationEnabled   bool   `yaml:"creationEnabled"`
	FlagsDoc          `yaml:",inline"`
}

type StageDoc struct {
	ID                   string `yaml:"id"`
	Name                 string `yaml:"name"`
	MappedProgram        string `yaml:"mappedProgram"`
	ProgramStage         string `yaml:"programStage"`
	EventCreationEnabled bool   `yaml:"eventCreationEnabled"`
	FlagsDoc             `yaml:",inline"`
}

type RuleDoc struct {
	ID                  string     `yaml:"id"`
	Name                string     `yaml:"name"`
	Description         string     `yaml:"description"`
	EvaluationOrder     int        `yaml:"evaluationOrder"`
	FhirResourceType    string     `yaml:"fhirResourceType"`
	ApplicableCodes     []string   `yaml:"applicableCodes"`
	ApplicableImpScript *ScriptRef `yaml:"applicableImpScript"`
	TransformImpScript  *ScriptRef `yaml:"transformImpScript"`
	ApplicableExpScript *ScriptRef `yaml:"applicableExpScript"`
	TransformExpScript  *ScriptRef `yaml:"transformExpScript"`
	FlagsDoc            `yaml:",inline"`
	// tracked entity rules
	TrackedEntityType   string     `yaml:"trackedEntityType"`
	IdentifierAttribute string     `yaml:"identifierAttribute"`
	OrgUnitLookupScript *ScriptRef `yaml:"orgUnitLookupScript"`
	// enrollment rules
	MappedProgram string `yaml:"mappedProgram"`
	// program stage rules
	MappedStage string `yaml:"mappedStage"`
}

// LoadFile reads a mapping metadata file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Load decodes mapping metadata.
func Load(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode mapping metadata: %w", err)
	}
	return &doc, nil
}

func (f FlagsDoc) flags() types.Flags {
	on := func(b *bool) bool { return b == nil || *b }
	return types.Flags{
		Enabled:           on(f.Enabled),
		ImpEnabled:        on(f.ImpEnabled),
		ExpEnabled:        on(f.ExpEnabled),
		FhirCreateEnabled: on(f.FhirCreateEnabled),
		FhirUpdateEnabled: on(f.FhirUpdateEnabled),
		FhirDeleteEnabled: on(f.FhirDeleteEnabled),
	}
}
