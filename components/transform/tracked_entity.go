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

const FhirToTrackedEntityType = "fhirToTrackedEntity"

func init() {
	Registry.Add(&FhirToTrackedEntity{})
}

// FhirToTrackedEntity creates or updates the tracked entity identified by
// the input. The identifier attribute of the rule holds the FHIR identifier
// of the client's identifier system.
//
// Script variables: output is the WritableScriptedTrackedEntity, the
// organization unit lookup script of the rule runs before the transform
// script and returns a reference of the organization unit.
type FhirToTrackedEntity struct {
	baseTransformer
}

func (x *FhirToTrackedEntity) Type() string {
	return FhirToTrackedEntityType
}

func (x *FhirToTrackedEntity) New() types.Transformer {
	return &FhirToTrackedEntity{}
}

func (x *FhirToTrackedEntity) Direction() types.Direction {
	return types.DirectionImport
}

func (x *FhirToTrackedEntity) TrackerResourceType() types.TrackerResourceType {
	return types.TrackedEntityResource
}

// TrackedEntityLockKey is the lock key of the tracked entity with the identifier.
func TrackedEntityLockKey(typeID, identifier string) string {
	return "TE:" + typeID + ":" + identifier
}

func (x *FhirToTrackedEntity) Transform(ctx context.Context, tctx *types.TransformerContext, input types.TransformInput,
	info types.RuleInfo, vars map[string]interface{}) (*types.TransformResult, error) {
	rule, ok := info.Rule().(*types.TrackedEntityRule)
	if !ok {
		return nil, types.NewFatalError("rule %s is not a tracked entity rule", info)
	}
	resource, err := fhirResource(input)
	if err != nil {
		return nil, err
	}
	def, attribute, err := x.identifierAttribute(ctx, rule)
	if err != nil {
		return nil, err
	}
	identifier := resourceIdentifier(tctx, resource)
	if identifier == "" {
		return nil, nil
	}
	if err := x.lock(ctx, TrackedEntityLockKey(def.ID, identifier)); err != nil {
		return nil, err
	}

	existing, err := x.deps.Tracker.FindTrackedEntityByIdentifier(ctx, def.ID, attribute.ID, identifier)
	if err != nil {
		return nil, err
	}
	var entity *tracker.TrackedEntity
	if existing == nil {
		if !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirCreate) {
			return nil, nil
		}
		entity = &tracker.TrackedEntity{TypeID: def.ID, NewResource: true}
	} else {
		if !rule.EffectiveOperationEnabled(types.DirectionImport, types.FhirUpdate) {
			return nil, nil
		}
		entity = existing.Clone()
	}

	output := scripted.NewWritableScriptedTrackedEntity(def, entity, tctx.TrackerUsername)
	if _, err := output.SetValue(tracker.NewReference(attribute.ID, tracker.ReferenceID), identifier); err != nil {
		return nil, err
	}
	scope := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	scope[types.OutputVar] = output

	if rule.OrgUnitLookupScript != nil {
		orgUnitID, err := x.lookupOrgUnit(ctx, tctx, rule.OrgUnitLookupScript, scope)
		if err != nil {
			return nil, err
		}
		if orgUnitID == "" && entity.OrgUnitID == "" {
			return nil, nil
		}
		if orgUnitID != "" {
			output.SetOrganizationUnitId(orgUnitID)
		}
	}

	ok, err = x.runScript(ctx, tctx, rule, scope)
	if err != nil || !ok {
		return nil, err
	}
	if err := output.Validate(); err != nil {
		return nil, err
	}
	return &types.TransformResult{Resource: entity}, nil
}

// lookupOrgUnit returns the id of the organization unit the script refers
// to, empty when the script returns nothing.
func (x *FhirToTrackedEntity) lookupOrgUnit(ctx context.Context, tctx *types.TransformerContext, script *types.ExecutableScript, vars map[string]interface{}) (string, error) {
	v, err := x.deps.ScriptExecutor.Execute(ctx, script, tctx.Version, vars, types.ResultString)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	if s == "" {
		return "", nil
	}
	ref, err := tracker.ParseReference(s)
	if err != nil {
		return "", types.NewMappingError("organization unit lookup %s returned an invalid reference: %s", script, err)
	}
	ou, err := x.deps.Metadata.FindOrganizationUnit(ctx, ref)
	if err != nil {
		return "", err
	}
	if ou == nil {
		return "", types.NewDataError("Organization unit %s could not be found.", ref)
	}
	return ou.ID, nil
}
