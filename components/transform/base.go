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
	"github.com/rulego/fhiradapter/builtin/funcs"
	"github.com/rulego/fhiradapter/utils/cast"
)

// baseTransformer holds what every transformer is initialised with.
type baseTransformer struct {
	config types.Config
	deps   types.TransformerDeps
}

func (b *baseTransformer) Init(config types.Config, deps types.TransformerDeps) error {
	if deps.ScriptExecutor == nil {
		return types.NewFatalError("script executor must be specified")
	}
	b.config = config
	b.deps = deps
	return nil
}

func (b *baseTransformer) Versions() []types.FhirVersion {
	return types.FhirVersions
}

// runScript executes the transform script of the rule. A rule without
// transform script always succeeds; a script result other than true declines.
func (b *baseTransformer) runScript(ctx context.Context, tctx *types.TransformerContext, rule types.Rule, vars map[string]interface{}) (bool, error) {
	script := rule.GetTransformScript(tctx.Direction)
	if script == nil {
		return true, nil
	}
	v, err := b.deps.ScriptExecutor.Execute(ctx, script, tctx.Version, vars, types.ResultBoolean)
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

// runAnyScript executes the transform script and returns its raw result.
func (b *baseTransformer) runAnyScript(ctx context.Context, tctx *types.TransformerContext, rule types.Rule, vars map[string]interface{}) (interface{}, error) {
	script := rule.GetTransformScript(tctx.Direction)
	if script == nil {
		return true, nil
	}
	return b.deps.ScriptExecutor.Execute(ctx, script, tctx.Version, vars, types.ResultAny)
}

// lock acquires key in the lock context carried by ctx.
func (b *baseTransformer) lock(ctx context.Context, key string) error {
	if b.deps.Locks == nil {
		return nil
	}
	lockCtx, ok := b.deps.Locks.Current(ctx)
	if !ok {
		return types.NewLockMisuseError("no lock context for key %s", key)
	}
	return lockCtx.Lock(ctx, key)
}

func (b *baseTransformer) trackedEntityType(ctx context.Context, ref tracker.Reference) (*tracker.TrackedEntityTypeDefinition, error) {
	def, err := b.deps.Metadata.FindTrackedEntityType(ctx, ref)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, types.NewMappingError("Tracked entity type %s could not be found.", ref)
	}
	return def, nil
}

func (b *baseTransformer) program(ctx context.Context, mapped *types.MappedTrackerProgram) (*tracker.Program, error) {
	if mapped == nil {
		return nil, types.NewFatalError("rule has no program")
	}
	program, err := b.deps.Metadata.FindProgram(ctx, mapped.ProgramReference)
	if err != nil {
		return nil, err
	}
	if program == nil {
		return nil, types.NewMappingError("Program %s of %s could not be found.", mapped.ProgramReference, mapped.Name)
	}
	return program, nil
}

// identifierAttribute resolves the attribute a tracked entity rule identifies entities with.
func (b *baseTransformer) identifierAttribute(ctx context.Context, rule *types.TrackedEntityRule) (*tracker.TrackedEntityTypeDefinition, *tracker.TrackedEntityAttribute, error) {
	def, err := b.trackedEntityType(ctx, rule.TrackedEntityType)
	if err != nil {
		return nil, nil, err
	}
	attribute, ok := def.FindAttribute(rule.IdentifierAttribute)
	if !ok {
		return nil, nil, types.NewMappingError("Tracked entity type \"%s\" does not include identifier attribute %s.", def.Name, rule.IdentifierAttribute)
	}
	return def, attribute, nil
}

// subjectTrackedEntity finds the tracked entity of the patient the input refers to.
func (b *baseTransformer) subjectTrackedEntity(ctx context.Context, tctx *types.TransformerContext, program *types.MappedTrackerProgram, resource fhir.Resource) (*tracker.TrackedEntity, error) {
	if program.TrackedEntityRule == nil {
		return nil, types.NewMappingError("Program %s has no tracked entity rule.", program.Name)
	}
	def, attribute, err := b.identifierAttribute(ctx, program.TrackedEntityRule)
	if err != nil {
		return nil, err
	}
	identifier := subjectIdentifier(tctx, resource)
	if identifier == "" {
		return nil, types.NewDataError("%s does not refer to a patient.", fhir.VersionedID(resource))
	}
	te, err := b.deps.Tracker.FindTrackedEntityByIdentifier(ctx, def.ID, attribute.ID, identifier)
	if err != nil {
		return nil, err
	}
	if te == nil {
		return nil, types.NewDataError("Tracked entity for patient %s could not be found.", identifier)
	}
	return te, nil
}

// resourceIdentifier returns the identifier a tracked entity is matched by:
// the identifier of the client's system, else the FHIR id.
func resourceIdentifier(tctx *types.TransformerContext, resource fhir.Resource) string {
	var identifiers []fhir.Identifier
	switch r := resource.(type) {
	case *fhir.Patient:
		identifiers = r.Identifier
	case *fhir.Organization:
		identifiers = r.Identifier
	}
	if tctx.IdentifierSystem != "" {
		if v, ok := funcs.IdentifierValue(identifiers, tctx.IdentifierSystem); ok {
			return v
		}
	}
	return resource.GetID()
}

// subjectIdentifier returns the identifier of the patient resource refers to.
func subjectIdentifier(tctx *types.TransformerContext, resource fhir.Resource) string {
	var ref *fhir.Reference
	switch r := resource.(type) {
	case *fhir.Patient:
		return resourceIdentifier(tctx, r)
	case *fhir.Observation:
		ref = r.Subject
	case *fhir.Immunization:
		ref = r.Patient
	}
	if ref == nil {
		return ""
	}
	if ref.Identifier != nil && ref.Identifier.Value != "" &&
		(tctx.IdentifierSystem == "" || ref.Identifier.System == tctx.IdentifierSystem) {
		return ref.Identifier.Value
	}
	return ref.ResourceID()
}

// effectiveDate returns when the clinical fact of resource happened.
func effectiveDate(resource fhir.Resource) *time.Time {
	var value string
	switch r := resource.(type) {
	case *fhir.Observation:
		value = r.EffectiveDateTime
		if value == "" {
			value = r.Issued
		}
	case *fhir.Immunization:
		value = r.OccurrenceDate()
	}
	if value == "" {
		return nil
	}
	t, err := cast.ToTimeE(value)
	if err != nil {
		return nil
	}
	return &t
}

func fhirResource(input types.TransformInput) (fhir.Resource, error) {
	r, ok := input.Value().(fhir.Resource)
	if !ok || r == nil {
		return nil, types.NewFatalError("input %s is not a FHIR resource", input.Key())
	}
	return r, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
