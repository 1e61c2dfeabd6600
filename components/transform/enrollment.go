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

package transform

import (
	"context"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/components/scripted"
)

const FhirToEnrollmentType = "fhirToEnrollment"

func init() {
	Registry.Add(&FhirToEnrollment{})
}

// FhirToEnrollment enrolls the tracked entity of the input's patient into
// the program of the rule, or updates the active enrollment.
type FhirToEnrollment struct {
	baseTransformer
}

func (x *FhirToEnrollment) Type() string {
	return FhirToEnrollmentType
}

func (x *FhirToEnrollment) New() types.Transformer {
	return &FhirToEnrollment{}
}

func (x *FhirToEnrollment) Direction() types.Direction {
	return types.DirectionImport
}

func (x *FhirToEnrollment) TrackerResourceType() types.TrackerResourceType {
	return types.EnrollmentResource
}

// EnrollmentLockKey is the lock key of the enrollments of a tracked entity in a program.
func EnrollmentLockKey(programID, trackedEntityID string) string {
	return "EN:" + programID + ":" + trackedEntityID
}

func (x *FhirToEnrollment) Transform(ctx context.Context, tctx *types.TransformerContext, input types.TransformInput,
	info types.RuleInfo, vars map[string]interface{}) (*types.TransformResult, error) {
	rule, ok := info.Rule().(*types.EnrollmentRule)
	if !ok {
		return nil, types.NewFatalError("rule %s is not an enrollment rule", info)
	}
	resource, err := fhirResource(input)
	if err != nil {
		return nil, err
	}
	program, err := x.program(ctx, rule.Program)
	if err != nil {
		return nil, err
	}
	te, err := x.subjectTrackedEntity(ctx, tctx, rule.Program, resource)
	if err != nil {
		return nil, err
	}
	if err := x.lock(ctx, EnrollmentLockKey(program.ID, te.ID)); err != nil {
		return nil, err
	}

	enrollment, err := x.deps.Tracker.FindActiveEnrollment(ctx, program.ID, te.ID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		if !rule.Program.CreationEnabled || !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirCreate) {
			return nil, nil
		}
		enrollment = newEnrollment(tctx, program, te)
	} else {
		if !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirUpdate) {
			return nil, nil
		}
		enrollment = enrollment.Clone()
	}

	output := scripted.NewWritableScriptedEnrollment(program, enrollment)
	scope := make(map[string]interface{}, len(vars)+2)
	for k, v := range vars {
		scope[k] = v
	}
	scope[types.OutputVar] = output
	scope["trackedEntity"] = scripted.NewImmutableScriptedResource(te)

	ok, err = x.runScript(ctx, tctx, rule, scope)
	if err != nil || !ok {
		return nil, err
	}
	if err := output.Validate(); err != nil {
		return nil, err
	}
	return &types.TransformResult{Resource: enrollment}, nil
}

// newEnrollment creates an active enrollment dated at the request time.
func newEnrollment(tctx *types.TransformerContext, program *tracker.Program, te *tracker.TrackedEntity) *tracker.Enrollment {
	return &tracker.Enrollment{
		ProgramID:       program.ID,
		TrackedEntityID: te.ID,
		OrgUnitID:       te.OrgUnitID,
		EnrollmentDate:  timePtr(tctx.Now),
		IncidentDate:    timePtr(tctx.Now),
		Status:          tracker.EnrollmentActive,
		NewResource:     true,
	}
}
