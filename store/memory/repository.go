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

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/utils/cache"
	"github.com/rulego/fhiradapter/utils/str"
)

// Repository serves mapping metadata from memory. It implements the rule,
// client resource, code and tracker metadata repositories. Candidate rule
// lookups are cached when a cache is configured.
type Repository struct {
	mu                 sync.RWMutex
	rules              []types.Rule
	clients            map[string]*types.Client
	clientResources    map[string]*types.ClientResource
	codes              map[string][]string
	trackedEntityTypes []*tracker.TrackedEntityTypeDefinition
	programs           []*tracker.Program
	orgUnits           []*tracker.OrganizationUnit
	cache              *cache.NamespaceCache
	cacheTTL           string
}

// NewRepository links the documents of doc. config.Cache and
// config.MetadataCacheTTL configure the candidate rule cache.
func NewRepository(doc *Document, config types.Config) (*Repository, error) {
	r := &Repository{cache: cache.NewNamespaceCache(config.Cache, "rules:"), cacheTTL: config.MetadataCacheTTL}
	if err := r.Reload(doc); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces all metadata and evicts cached lookups.
func (r *Repository) Reload(doc *Document) error {
	l, err := link(doc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = l.rules
	r.clients = l.clients
	r.clientResources = l.clientResources
	r.codes = doc.Codes
	r.trackedEntityTypes = doc.TrackedEntityTypes
	r.programs = doc.Programs
	r.orgUnits = doc.OrganizationUnits
	r.mu.Unlock()
	if r.cache != nil {
		_ = r.cache.DeleteByPrefix("")
	}
	return nil
}

func (r *Repository) FindCandidateRules(ctx context.Context, direction types.Direction, resourceType string, codes []string) ([]types.RuleInfo, error) {
	key := candidateKey(direction, resourceType, codes)
	if cached, ok := r.cache.Get(key).([]types.Rule); ok {
		return toInfos(cached), nil
	}
	r.mu.RLock()
	var result []types.Rule
	for _, rule := range r.rules {
		if matchesType(rule, direction, resourceType) && matchesCodes(rule.GetApplicableCodes(), codes) {
			result = append(result, rule)
		}
	}
	r.mu.RUnlock()
	if r.cache != nil {
		_ = r.cache.Set(key, result, r.cacheTTL)
	}
	return toInfos(result), nil
}

func toInfos(rules []types.Rule) []types.RuleInfo {
	infos := make([]types.RuleInfo, len(rules))
	for i, rule := range rules {
		infos[i] = types.NewRuleInfo(rule, nil)
	}
	return infos
}

// candidateKey is stable for any order of codes.
func candidateKey(direction types.Direction, resourceType string, codes []string) string {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	return "findCandidateRules:" + string(direction) + ":" + resourceType + ":" + str.ComparatorValue(sorted)
}

func matchesType(rule types.Rule, direction types.Direction, resourceType string) bool {
	if direction == types.DirectionExport {
		return string(rule.GetTrackerResourceType()) == resourceType
	}
	return string(rule.GetFhirResourceType()) == resourceType
}

func matchesCodes(applicable, codes []string) bool {
	if len(applicable) == 0 {
		return true
	}
	for _, c := range codes {
		if str.Contains(applicable, c) {
			return true
		}
	}
	return false
}

func (r *Repository) FindClientResource(ctx context.Context, id string) (*types.ClientResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cr, ok := r.clientResources[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return cr, nil
}

// FindEndpointFor returns the enabled client resource subscribed to the FHIR
// type of the rules, preferring resources marked for export and then the
// lowest id.
func (r *Repository) FindEndpointFor(ctx context.Context, rules []types.RuleInfo) (*types.ClientResource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fhirTypes := make(map[types.FhirResourceType]bool)
	for _, info := range rules {
		fhirTypes[info.Rule().GetFhirResourceType()] = true
	}
	var best *types.ClientResource
	for _, cr := range r.clientResources {
		if !fhirTypes[cr.FhirResourceType] || cr.Client == nil || !cr.Client.Enabled {
			continue
		}
		if best == nil || (cr.PreferredForExport && !best.PreferredForExport) ||
			(cr.PreferredForExport == best.PreferredForExport && cr.ID < best.ID) {
			best = cr
		}
	}
	return best, nil
}

// FindClient returns ErrNotFound for unknown ids.
func (r *Repository) FindClient(ctx context.Context, id string) (*types.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return c, nil
}

// ClientResources returns all client resources ordered by id.
func (r *Repository) ClientResources() []*types.ClientResource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*types.ClientResource, 0, len(r.clientResources))
	for _, cr := range r.clientResources {
		result = append(result, cr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *Repository) FindSystemCodes(ctx context.Context, mappingCode string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.codes[mappingCode]...), nil
}

func (r *Repository) FindProgram(ctx context.Context, ref tracker.Reference) (*tracker.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.programs {
		if ref.Matches(p.ID, p.Code, p.Name) {
			return p, nil
		}
	}
	return nil, nil
}

func (r *Repository) FindTrackedEntityType(ctx context.Context, ref tracker.Reference) (*tracker.TrackedEntityTypeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.trackedEntityTypes {
		if ref.Matches(t.ID, t.Code, t.Name) {
			return t, nil
		}
	}
	return nil, nil
}

func (r *Repository) FindOrganizationUnit(ctx context.Context, ref tracker.Reference) (*tracker.OrganizationUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ou := range r.orgUnits {
		if ref.Matches(ou.ID, ou.Code, ou.Name) {
			return ou, nil
		}
	}
	return nil, nil
}

// linked is the result of resolving the references between documents.
type linked struct {
	rules           []types.Rule
	clients         map[string]*types.Client
	clientResources map[string]*types.ClientResource
}

func link(doc *Document) (*linked, error) {
	l := &linked{clients: make(map[string]*types.Client), clientResources: make(map[string]*types.ClientResource)}

	scripts := make(map[string]*types.ExecutableScript)
	for _, s := range doc.Scripts {
		language := types.ScriptLanguage(s.Language)
		switch strings.ToLower(s.Language) {
		case "", "js", "javascript":
			language = types.Js
		case "expr":
			language = types.Expr
		}
		script := &types.ExecutableScript{ID: s.ID, Name: s.Name, Language: language, Code: s.Code}
		for _, v := range s.Versions {
			version, err := types.ParseFhirVersion(v)
			if err != nil {
				return nil, err
			}
			script.Versions = append(script.Versions, version)
		}
		scripts[s.ID] = script
	}
	useScript := func(ref *ScriptRef) (*types.ExecutableScript, error) {
		if ref == nil || ref.Script == "" {
			return nil, nil
		}
		s, ok := scripts[ref.Script]
		if !ok {
			return nil, types.NewMappingError("unknown script %s", ref.Script)
		}
		usage := *s
		usage.Args = ref.Args
		return &usage, nil
	}

	for _, c := range doc.Clients {
		version := types.R4
		if c.FhirVersion != "" {
			v, err := types.ParseFhirVersion(c.FhirVersion)
			if err != nil {
				return nil, err
			}
			version = v
		}
		client := &types.Client{
			ID:                  c.ID,
			Name:                c.Name,
			FhirVersion:         version,
			BaseURL:             c.BaseURL,
			Headers:             c.Headers,
			AuthorizationHeader: c.AuthorizationHeader,
			IdentifierSystem:    c.IdentifierSystem,
			TrackerUsername:     c.TrackerUsername,
			Enabled:             c.Enabled == nil || *c.Enabled,
		}
		l.clients[c.ID] = client
		for _, res := range c.Resources {
			if _, ok := l.clientResources[res.ID]; ok {
				return nil, types.NewMappingError("duplicate client resource %s", res.ID)
			}
			l.clientResources[res.ID] = &types.ClientResource{
				ID:                 res.ID,
				Client:             client,
				FhirResourceType:   types.FhirResourceType(res.FhirResourceType),
				ExpOnly:            res.ExpOnly,
				PreferredForExport: res.PreferredForExport,
				Criteria:           res.Criteria,
			}
		}
	}

	base := func(d RuleDoc) (types.BaseRule, error) {
		b := types.BaseRule{
			ID:               d.ID,
			Name:             d.Name,
			Description:      d.Description,
			EvaluationOrder:  d.EvaluationOrder,
			FhirResourceType: types.FhirResourceType(d.FhirResourceType),
			ApplicableCodes:  d.ApplicableCodes,
			Flags:            d.flags(),
		}
		var err error
		for _, s := range []struct {
			target **types.ExecutableScript
			ref    *ScriptRef
		}{
			{&b.ApplicableImpScript, d.ApplicableImpScript},
			{&b.TransformImpScript, d.TransformImpScript},
			{&b.ApplicableExpScript, d.ApplicableExpScript},
			{&b.TransformExpScript, d.TransformExpScript},
		} {
			if *s.target, err = useScript(s.ref); err != nil {
				return b, err
			}
		}
		return b, nil
	}
	parseRef := func(s string) (tracker.Reference, error) {
		ref, err := tracker.ParseReference(s)
		if err != nil {
			return ref, types.NewMappingError("%s", err)
		}
		return ref, nil
	}

	teRules := make(map[string]*types.TrackedEntityRule)
	for _, d := range doc.TrackedEntityRules {
		b, err := base(d)
		if err != nil {
			return nil, err
		}
		rule := &types.TrackedEntityRule{BaseRule: b}
		if rule.TrackedEntityType, err = parseRef(d.TrackedEntityType); err != nil {
			return nil, err
		}
		if rule.IdentifierAttribute, err = parseRef(d.IdentifierAttribute); err != nil {
			return nil, err
		}
		if rule.OrgUnitLookupScript, err = useScript(d.OrgUnitLookupScript); err != nil {
			return nil, err
		}
		teRules[d.ID] = rule
		l.rules = append(l.rules, rule)
	}

	programs := make(map[string]*types.MappedTrackerProgram)
	for _, d := range doc.MappedPrograms {
		ref, err := parseRef(d.Program)
		if err != nil {
			return nil, err
		}
		p := &types.MappedTrackerProgram{ID: d.ID, Name: d.Name, ProgramReference: ref,
			CreationEnabled: d.CreationEnabled, Flags: d.flags()}
		if d.TrackedEntityRule != "" {
			if p.TrackedEntityRule = teRules[d.TrackedEntityRule]; p.TrackedEntityRule == nil {
				return nil, types.NewMappingError("mapped program %s refers to unknown tracked entity rule %s", d.ID, d.TrackedEntityRule)
			}
		}
		programs[d.ID] = p
	}

	stages := make(map[string]*types.MappedTrackerProgramStage)
	for _, d := range doc.Stages {
		ref, err := parseRef(d.ProgramStage)
		if err != nil {
			return nil, err
		}
		program, ok := programs[d.MappedProgram]
		if !ok {
			return nil, types.NewMappingError("mapped stage %s refers to unknown mapped program %s", d.ID, d.MappedProgram)
		}
		stages[d.ID] = &types.MappedTrackerProgramStage{ID: d.ID, Name: d.Name, Program: program,
			ProgramStageReference: ref, EventCreationEnabled: d.EventCreationEnabled, Flags: d.flags()}
	}

	for _, d := range doc.EnrollmentRules {
		b, err := base(d)
		if err != nil {
			return nil, err
		}
		program, ok := programs[d.MappedProgram]
		if !ok {
			return nil, types.NewMappingError("enrollment rule %s refers to unknown mapped program %s", d.ID, d.MappedProgram)
		}
		l.rules = append(l.rules, &types.EnrollmentRule{BaseRule: b, Program: program})
	}
	for _, d := range doc.ProgramStageRules {
		b, err := base(d)
		if err != nil {
			return nil, err
		}
		stage, ok := stages[d.MappedStage]
		if !ok {
			return nil, types.NewMappingError("program stage rule %s refers to unknown mapped stage %s", d.ID, d.MappedStage)
		}
		l.rules = append(l.rules, &types.ProgramStageRule{BaseRule: b, ProgramStage: stage})
	}
	return l, nil
}

var _ types.RuleRepository = (*Repository)(nil)
var _ types.ClientResourceRepository = (*Repository)(nil)
var _ types.CodeRepository = (*Repository)(nil)
var _ types.TrackerMetadataRepository = (*Repository)(nil)
