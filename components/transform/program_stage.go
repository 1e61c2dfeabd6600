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

const FhirToProgramStageEventType = "fhirToProgramStageEvent"

func init() {
	Registry.Add(&FhirToProgramStageEvent{})
}

// FhirToProgramStageEvent writes the input into an event of the program
// stage of the rule. A non-repeatable stage reuses its existing event. When
// the tracked entity is not enrolled and the program allows it, an
// enrollment is created and returned as related resource.
//
// Script variables besides output: enrollment, trackedEntity and
// programStageEvents, the existing events of the stage.
type FhirToProgramStageEvent struct {
	baseTransformer
}

func (x *FhirToProgramStageEvent) Type() string {
	return FhirToProgramStageEventType
}

func (x *FhirToProgramStageEvent) New() types.Transformer {
	return &FhirToProgramStageEvent{}
}

func (x *FhirToProgramStageEvent) Direction() types.Direction {
	return types.DirectionImport
}

func (x *FhirToProgramStageEvent) TrackerResourceType() types.TrackerResourceType {
	return types.ProgramStageEventResource
}

func (x *FhirToProgramStageEvent) Transform(ctx context.Context, tctx *types.TransformerContext, input types.TransformInput,
	info types.RuleInfo, vars map[string]interface{}) (*types.TransformResult, error) {
	rule, ok := info.Rule().(*types.ProgramStageRule)
	if !ok || rule.ProgramStage == nil {
		return nil, types.NewFatalError("rule %s is not a program stage rule", info)
	}
	mappedStage := rule.ProgramStage
	resource, err := fhirResource(input)
	if err != nil {
		return nil, err
	}
	program, err := x.program(ctx, mappedStage.Program)
	if err != nil {
		return nil, err
	}
	stage, ok := program.FindStage(mappedStage.ProgramStageReference)
	if !ok {
		return nil, types.NewMappingError("Program \"%s\" does not include stage %s.", program.Name, mappedStage.ProgramStageReference)
	}
	te, err := x.subjectTrackedEntity(ctx, tctx, mappedStage.Program, resource)
	if err != nil {
		return nil, err
	}
	if err := x.lock(ctx, EnrollmentLockKey(program.ID, te.ID)); err != nil {
		return nil, err
	}

	var related []interface{}
	enrollment, err := x.deps.Tracker.FindActiveEnrollment(ctx, program.ID, te.ID)
	if err != nil {
		return nil, err
	}
	var events []*tracker.Event
	if enrollment == nil {
		if !mappedStage.Program.CreationEnabled {
			return nil, nil
		}
		enrollment = newEnrollment(tctx, program, te)
		related = append(related, enrollment)
	} else {
		enrollment = enrollment.Clone()
		if enrollment.ID != "" {
			if events, err = x.deps.Tracker.FindEvents(ctx, stage.ID, enrollment.ID); err != nil {
				return nil, err
			}
		}
	}

	var event *tracker.Event
	if !stage.Repeatable && len(events) > 0 {
		if !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirUpdate) {
			return nil, nil
		}
		event = events[0].Clone()
	} else {
		if !mappedStage.EventCreationEnabled || !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirCreate) {
			return nil, nil
		}
		event = &tracker.Event{
			ProgramID:       program.ID,
			ProgramStageID:  stage.ID,
			EnrollmentID:    enrollment.ID,
			TrackedEntityID: te.ID,
			OrgUnitID:       enrollment.OrgUnitID,
			Status:          tracker.EventActive,
			DueDate:         timePtr(tctx.Now),
			NewResource:     true,
		}
		if date := effectiveDate(resource); date != nil {
			event.EventDate = date
		} else {
			event.EventDate = timePtr(tctx.Now)
		}
	}

	output := scripted.NewWritableScriptedEvent(program, stage, event, tctx.TrackerUsername)
	scope := make(map[string]interface{}, len(vars)+4)
	for k, v := range vars {
		scope[k] = v
	}
	scope[types.OutputVar] = output
	scope["enrollment"] = scripted.NewWritableScriptedEnrollment(program, enrollment)
	scope["trackedEntity"] = scripted.NewImmutableScriptedResource(te)
	scope["programStageEvents"] = events

	ok, err = x.runScript(ctx, tctx, rule, scope)
	if err != nil || !ok {
		return nil, err
	}
	if err := output.Validate(); err != nil {
		return nil, err
	}
	if !enrollment.NewResource && enrollment.IsModified() {
		related = append(related, enrollment)
	}
	return &types.TransformResult{Resource: event, Related: related}, nil
}
