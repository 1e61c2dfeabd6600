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
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/components/scripted"
	"github.com/rulego/fhiradapter/utils/maps"
)

const (
	TrackedEntityToPatientType = "trackedEntityToPatient"
	EventToObservationType     = "eventToObservation"
)

func init() {
	Registry.Add(&TrackedEntityToPatient{}, &EventToObservation{})
}

// trackerResource returns the tracker resource of an export input.
func trackerResource(input types.TransformInput) (tracker.Resource, error) {
	switch v := input.(type) {
	case *scripted.TrackerInput:
		return v.Resource, nil
	}
	if view, ok := input.Value().(*scripted.ImmutableScriptedResource); ok {
		return view.Unwrap(), nil
	}
	return nil, types.NewFatalError("input %s is not a tracker resource", input.Key())
}

// applyExportResult merges what the transform script returned into output.
// false declines, an object is decoded onto output field by field.
func applyExportResult(result interface{}, output interface{}) (bool, error) {
	switch v := result.(type) {
	case nil:
		return true, nil
	case bool:
		return v, nil
	case map[string]interface{}:
		if err := maps.Map2Struct(v, output); err != nil {
			return false, types.NewDataError("transform script result could not be applied: %s", err)
		}
		return true, nil
	}
	return false, types.NewScriptError(nil, "unexpected transform script result %T", result)
}

func scopeWith(vars map[string]interface{}, output interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	scope[types.OutputVar] = output
	return scope
}

// TrackedEntityToPatient exports a tracked entity as FHIR patient. The
// identifier attribute becomes the identifier of the client's system.
type TrackedEntityToPatient struct {
	baseTransformer
}

func (x *TrackedEntityToPatient) Type() string {
	return TrackedEntityToPatientType
}

func (x *TrackedEntityToPatient) New() types.Transformer {
	return &TrackedEntityToPatient{}
}

func (x *TrackedEntityToPatient) Direction() types.Direction {
	return types.DirectionExport
}

func (x *TrackedEntityToPatient) TrackerResourceType() types.TrackerResourceType {
	return types.TrackedEntityResource
}

func (x *TrackedEntityToPatient) Transform(ctx context.Context, tctx *types.TransformerContext, input types.TransformInput,
	info types.RuleInfo, vars map[string]interface{}) (*types.TransformResult, error) {
	rule, ok := info.Rule().(*types.TrackedEntityRule)
	if !ok {
		return nil, types.NewFatalError("rule %s is not a tracked entity rule", info)
	}
	resource, err := trackerResource(input)
	if err != nil {
		return nil, err
	}
	te, ok := resource.(*tracker.TrackedEntity)
	if !ok {
		return nil, types.NewFatalError("input %s is not a tracked entity", input.Key())
	}
	_, attribute, err := x.identifierAttribute(ctx, rule)
	if err != nil {
		return nil, err
	}

	patient := &fhir.Patient{ResourceType: string(types.FhirPatient)}
	if a, ok := te.FindAttribute(attribute.ID); ok && a.Value != "" {
		patient.Identifier = append(patient.Identifier, fhir.Identifier{System: tctx.IdentifierSystem, Value: a.Value})
	}
	if te.LastUpdated != nil {
		patient.Meta = &fhir.Meta{LastUpdated: te.LastUpdated.UTC().Format(time.RFC3339Nano)}
	}

	result, err := x.runAnyScript(ctx, tctx, rule, scopeWith(vars, patient))
	if err != nil {
		return nil, err
	}
	if ok, err := applyExportResult(result, patient); err != nil || !ok {
		return nil, err
	}
	return &types.TransformResult{Resource: patient}, nil
}

// EventToObservation exports a program stage event as FHIR observation of
// the patient of its tracked entity.
type EventToObservation struct {
	baseTransformer
}

func (x *EventToObservation) Type() string {
	return EventToObservationType
}

func (x *EventToObservation) New() types.Transformer {
	return &EventToObservation{}
}

func (x *EventToObservation) Direction() types.Direction {
	return types.DirectionExport
}

func (x *EventToObservation) TrackerResourceType() types.TrackerResourceType {
	return types.ProgramStageEventResource
}

func (x *EventToObservation) Transform(ctx context.Context, tctx *types.TransformerContext, input types.TransformInput,
	info types.RuleInfo, vars map[string]interface{}) (*types.TransformResult, error) {
	rule, ok := info.Rule().(*types.ProgramStageRule)
	if !ok {
		return nil, types.NewFatalError("rule %s is not a program stage rule", info)
	}
	resource, err := trackerResource(input)
	if err != nil {
		return nil, err
	}
	event, ok := resource.(*tracker.Event)
	if !ok {
		return nil, types.NewFatalError("input %s is not an event", input.Key())
	}
	if event.Deleted {
		return nil, nil
	}

	observation := &fhir.Observation{ResourceType: string(types.FhirObservation), Status: "final"}
	if event.TrackedEntityID != "" {
		observation.Subject = &fhir.Reference{Reference: string(types.FhirPatient) + "/" + event.TrackedEntityID}
	}
	if event.EventDate != nil {
		observation.EffectiveDateTime = event.EventDate.UTC().Format(time.RFC3339)
	}

	result, err := x.runAnyScript(ctx, tctx, rule, scopeWith(vars, observation))
	if err != nil {
		return nil, err
	}
	if ok, err := applyExportResult(result, observation); err != nil || !ok {
		return nil, err
	}
	return &types.TransformResult{Resource: observation}, nil
}
