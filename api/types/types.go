/*
 * Copyright 2023 The RuleGo Authors.
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

package types

import (
	"github.com/rulego/fhiradapter/api/types/tracker"
)

// TrackerResourceType tracker资源类型
type TrackerResourceType = tracker.ResourceType

const (
	TrackedEntityResource     = tracker.TrackedEntityType
	EnrollmentResource        = tracker.EnrollmentType
	ProgramStageEventResource = tracker.ProgramStageEventType
	OrganizationUnitResource  = tracker.OrganizationUnitType
)

// Rule is a configured mapping rule. Concrete rules are TrackedEntityRule,
// EnrollmentRule and ProgramStageRule.
type Rule interface {
	GetID() string
	GetName() string
	GetEvaluationOrder() int
	GetFhirResourceType() FhirResourceType
	GetTrackerResourceType() TrackerResourceType
	// GetApplicableCodes 规则适用的系统编码（system|code），为空表示不限
	GetApplicableCodes() []string
	GetApplicableScript(direction Direction) *ExecutableScript
	GetTransformScript(direction Direction) *ExecutableScript
	// EffectiveEnabled is the conjunction of the rule's flags and the flags
	// of every owning container. It is evaluated on each call.
	EffectiveEnabled(direction Direction) bool
	// EffectiveOperationEnabled is EffectiveEnabled plus the per-operation flags of the chain.
	EffectiveOperationEnabled(direction Direction, operation FhirOperation) bool
}

// Flags 启用标志，规则和其容器共用
type Flags struct {
	Enabled           bool `yaml:"enabled"`
	ImpEnabled        bool `yaml:"impEnabled"`
	ExpEnabled        bool `yaml:"expEnabled"`
	FhirCreateEnabled bool `yaml:"fhirCreateEnabled"`
	FhirUpdateEnabled bool `yaml:"fhirUpdateEnabled"`
	FhirDeleteEnabled bool `yaml:"fhirDeleteEnabled"`
}

// NewEnabledFlags returns flags with everything switched on.
func NewEnabledFlags() Flags {
	return Flags{Enabled: true, ImpEnabled: true, ExpEnabled: true,
		FhirCreateEnabled: true, FhirUpdateEnabled: true, FhirDeleteEnabled: true}
}

func (f Flags) enabled(direction Direction) bool {
	if !f.Enabled {
		return false
	}
	switch direction {
	case DirectionImport:
		return f.ImpEnabled
	case DirectionExport:
		return f.ExpEnabled
	}
	return false
}

func (f Flags) operationEnabled(operation FhirOperation) bool {
	switch operation {
	case FhirCreate:
		return f.FhirCreateEnabled
	case FhirUpdate:
		return f.FhirUpdateEnabled
	case FhirDelete:
		return f.FhirDeleteEnabled
	}
	return false
}

// BaseRule holds the attributes shared by all rule variants.
type BaseRule struct {
	ID               string
	Name             string
	Description      string
	EvaluationOrder  int
	FhirResourceType FhirResourceType
	ApplicableCodes  []string
	Flags
	ApplicableImpScript *ExecutableScript
	TransformImpScript  *ExecutableScript
	ApplicableExpScript *ExecutableScript
	TransformExpScript  *ExecutableScript
}

func (r *BaseRule) GetID() string                         { return r.ID }
func (r *BaseRule) GetName() string                       { return r.Name }
func (r *BaseRule) GetEvaluationOrder() int               { return r.EvaluationOrder }
func (r *BaseRule) GetFhirResourceType() FhirResourceType { return r.FhirResourceType }
func (r *BaseRule) GetApplicableCodes() []string          { return r.ApplicableCodes }

func (r *BaseRule) GetApplicableScript(direction Direction) *ExecutableScript {
	if direction == DirectionExport {
		return r.ApplicableExpScript
	}
	return r.ApplicableImpScript
}

func (r *BaseRule) GetTransformScript(direction Direction) *ExecutableScript {
	if direction == DirectionExport {
		return r.TransformExpScript
	}
	return r.TransformImpScript
}

func (r *BaseRule) String() string {
	return r.Name + "[" + r.ID + "]"
}

// MappedTrackerProgram 映射的tracker项目
type MappedTrackerProgram struct {
	ID   string
	Name string
	// ProgramReference 引用tracker中的项目
	ProgramReference  tracker.Reference
	TrackedEntityRule *TrackedEntityRule
	// CreationEnabled 没有登记时是否允许自动创建登记
	CreationEnabled bool
	Flags
}

// MappedTrackerProgramStage 映射的项目阶段
type MappedTrackerProgramStage struct {
	ID                    string
	Name                  string
	Program               *MappedTrackerProgram
	ProgramStageReference tracker.Reference
	EventCreationEnabled  bool
	Flags
}

// TrackedEntityRule maps a FHIR resource to a tracked entity.
type TrackedEntityRule struct {
	BaseRule
	TrackedEntityType   tracker.Reference
	IdentifierAttribute tracker.Reference
	OrgUnitLookupScript *ExecutableScript
}

func (r *TrackedEntityRule) GetTrackerResourceType() TrackerResourceType {
	return TrackedEntityResource
}

func (r *TrackedEntityRule) EffectiveEnabled(direction Direction) bool {
	return r.Flags.enabled(direction)
}

func (r *TrackedEntityRule) EffectiveOperationEnabled(direction Direction, operation FhirOperation) bool {
	return r.EffectiveEnabled(direction) && r.Flags.operationEnabled(operation)
}

// EnrollmentRule maps a FHIR resource to an enrollment of a mapped program.
type EnrollmentRule struct {
	BaseRule
	Program *MappedTrackerProgram
}

func (r *EnrollmentRule) GetTrackerResourceType() TrackerResourceType {
	return EnrollmentResource
}

func (r *EnrollmentRule) EffectiveEnabled(direction Direction) bool {
	return r.Flags.enabled(direction) && r.Program != nil && r.Program.Flags.enabled(direction)
}

func (r *EnrollmentRule) EffectiveOperationEnabled(direction Direction, operation FhirOperation) bool {
	return r.EffectiveEnabled(direction) && r.Flags.operationEnabled(operation) &&
		r.Program.Flags.operationEnabled(operation)
}

// ProgramStageRule maps a FHIR resource to an event of a mapped program stage.
type ProgramStageRule struct {
	BaseRule
	ProgramStage *MappedTrackerProgramStage
}

func (r *ProgramStageRule) GetTrackerResourceType() TrackerResourceType {
	return ProgramStageEventResource
}

func (r *ProgramStageRule) EffectiveEnabled(direction Direction) bool {
	stage := r.ProgramStage
	return r.Flags.enabled(direction) && stage != nil && stage.Flags.enabled(direction) &&
		stage.Program != nil && stage.Program.Flags.enabled(direction)
}

func (r *ProgramStageRule) EffectiveOperationEnabled(direction Direction, operation FhirOperation) bool {
	return r.EffectiveEnabled(direction) && r.Flags.operationEnabled(operation) &&
		r.ProgramStage.Flags.operationEnabled(operation) && r.ProgramStage.Program.Flags.operationEnabled(operation)
}

// RuleInfo pairs a rule with its resolved data references. It is not
// modified after resolution.
type RuleInfo struct {
	rule           Rule
	dataReferences []tracker.Reference
}

func NewRuleInfo(rule Rule, dataReferences []tracker.Reference) RuleInfo {
	refs := make([]tracker.Reference, len(dataReferences))
	copy(refs, dataReferences)
	return RuleInfo{rule: rule, dataReferences: refs}
}

func (r RuleInfo) Rule() Rule {
	return r.rule
}

// DataReferences returns a copy of the resolved references.
func (r RuleInfo) DataReferences() []tracker.Reference {
	refs := make([]tracker.Reference, len(r.dataReferences))
	copy(refs, r.dataReferences)
	return refs
}

func (r RuleInfo) String() string {
	if r.rule == nil {
		return "<nil>"
	}
	return r.rule.GetName() + "[" + r.rule.GetID() + "]"
}
