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

package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/builtin/funcs"
)

// SortRules keeps the rules enabled for direction and orders them by
// evaluation order descending, then by id.
func SortRules(rules []types.Rule, direction types.Direction) []types.RuleInfo {
	enabled := make([]types.Rule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.EffectiveEnabled(direction) {
			enabled = append(enabled, r)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		if enabled[i].GetEvaluationOrder() != enabled[j].GetEvaluationOrder() {
			return enabled[i].GetEvaluationOrder() > enabled[j].GetEvaluationOrder()
		}
		return enabled[i].GetID() < enabled[j].GetID()
	})
	infos := make([]types.RuleInfo, len(enabled))
	for i, r := range enabled {
		infos[i] = types.NewRuleInfo(r, dataReferences(r, direction))
	}
	return infos
}

func rulesOf(infos []types.RuleInfo) []types.Rule {
	rules := make([]types.Rule, len(infos))
	for i, info := range infos {
		rules[i] = info.Rule()
	}
	return rules
}

// dataReferences collects the tracker references passed as arguments to the
// transform script of the rule.
func dataReferences(rule types.Rule, direction types.Direction) []tracker.Reference {
	script := rule.GetTransformScript(direction)
	if script == nil || len(script.Args) == 0 {
		return nil
	}
	names := make([]string, 0, len(script.Args))
	for name := range script.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	var refs []tracker.Reference
	for _, name := range names {
		switch v := script.Args[name].(type) {
		case tracker.Reference:
			refs = append(refs, v)
		case *tracker.Reference:
			if v != nil {
				refs = append(refs, *v)
			}
		}
	}
	return refs
}

// ImportResolver resolves the rules of one FHIR resource type.
type ImportResolver struct {
	resourceType types.FhirResourceType
	rules        types.RuleRepository
	clients      types.ClientResourceRepository
}

func NewImportResolver(resourceType types.FhirResourceType, rules types.RuleRepository, clients types.ClientResourceRepository) *ImportResolver {
	return &ImportResolver{resourceType: resourceType, rules: rules, clients: clients}
}

func (r *ImportResolver) Direction() types.Direction {
	return types.DirectionImport
}

func (r *ImportResolver) ResourceType() string {
	return string(r.resourceType)
}

func (r *ImportResolver) ResolveRules(ctx context.Context, resourceType string, input types.TransformInput) ([]types.RuleInfo, error) {
	rules, err := r.rules.FindCandidateRules(ctx, types.DirectionImport, resourceType, inputCodes(input))
	if err != nil {
		return nil, err
	}
	return SortRules(rulesOf(rules), types.DirectionImport), nil
}

// ResolveEndpoint returns the client resource that delivered the input.
// Unknown, disabled and export-only client resources own nothing.
func (r *ImportResolver) ResolveEndpoint(ctx context.Context, requestCtx *types.TransformRequestContext, input types.TransformInput, rules []types.RuleInfo) (*types.ClientResource, error) {
	if requestCtx == nil || requestCtx.ClientResourceID == "" || len(rules) == 0 {
		return nil, nil
	}
	cr, err := r.clients.FindClientResource(ctx, requestCtx.ClientResourceID)
	if errors.Is(err, types.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cr.ExpOnly || cr.Client == nil || !cr.Client.Enabled {
		return nil, nil
	}
	return cr, nil
}

// inputCodes returns the system codes rules of coded resources are selected by.
func inputCodes(input types.TransformInput) []string {
	if input == nil {
		return nil
	}
	switch v := input.Value().(type) {
	case *fhir.Observation:
		return funcs.ExtractCodes(&v.Code)
	case *fhir.Immunization:
		return funcs.ExtractCodes(&v.VaccineCode)
	}
	return nil
}

// ExportResolver resolves the rules of one tracker resource type.
type ExportResolver struct {
	resourceType types.TrackerResourceType
	rules        types.RuleRepository
	clients      types.ClientResourceRepository
}

func NewExportResolver(resourceType types.TrackerResourceType, rules types.RuleRepository, clients types.ClientResourceRepository) *ExportResolver {
	return &ExportResolver{resourceType: resourceType, rules: rules, clients: clients}
}

func (r *ExportResolver) Direction() types.Direction {
	return types.DirectionExport
}

func (r *ExportResolver) ResourceType() string {
	return string(r.resourceType)
}

func (r *ExportResolver) ResolveRules(ctx context.Context, resourceType string, input types.TransformInput) ([]types.RuleInfo, error) {
	rules, err := r.rules.FindCandidateRules(ctx, types.DirectionExport, resourceType, nil)
	if err != nil {
		return nil, err
	}
	return SortRules(rulesOf(rules), types.DirectionExport), nil
}

func (r *ExportResolver) ResolveEndpoint(ctx context.Context, requestCtx *types.TransformRequestContext, input types.TransformInput, rules []types.RuleInfo) (*types.ClientResource, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	cr, err := r.clients.FindEndpointFor(ctx, rules)
	if err != nil || cr == nil {
		return nil, err
	}
	if cr.Client == nil || !cr.Client.Enabled {
		return nil, nil
	}
	return cr, nil
}

// NewDefaultResolvers creates one import resolver per supported FHIR type
// and one export resolver per tracker resource type.
func NewDefaultResolvers(rules types.RuleRepository, clients types.ClientResourceRepository) []types.RuleResolver {
	resolvers := []types.RuleResolver{
		NewImportResolver(types.FhirPatient, rules, clients),
		NewImportResolver(types.FhirObservation, rules, clients),
		NewImportResolver(types.FhirImmunization, rules, clients),
		NewImportResolver(types.FhirEncounter, rules, clients),
	}
	for _, t := range []types.TrackerResourceType{types.TrackedEntityResource, types.EnrollmentResource, types.ProgramStageEventResource} {
		resolvers = append(resolvers, NewExportResolver(t, rules, clients))
	}
	return resolvers
}

var _ types.RuleResolver = (*ImportResolver)(nil)
var _ types.RuleResolver = (*ExportResolver)(nil)
