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
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/str"
)

// ServiceDeps are the collaborators of the transformation service.
type ServiceDeps struct {
	Executor  types.ScriptExecutor
	Locks     types.LockManager
	Bindings  *TransformerBindings
	Utils     *UtilsRegistry
	Resolvers []types.RuleResolver
}

type resolverKey struct {
	direction    types.Direction
	resourceType string
}

// Service turns inputs into transformation requests and produces one
// outcome per Transform call.
type Service struct {
	config    types.Config
	executor  types.ScriptExecutor
	locks     types.LockManager
	bindings  *TransformerBindings
	utils     *UtilsRegistry
	resolvers map[resolverKey]types.RuleResolver
	// now 测试时可替换
	now func() time.Time
}

func NewService(config types.Config, deps ServiceDeps) (*Service, error) {
	if deps.Executor == nil || deps.Locks == nil || deps.Bindings == nil || deps.Utils == nil {
		return nil, types.NewFatalError("transformation service requires an executor, a lock manager, transformer bindings and utils")
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	s := &Service{
		config:    config,
		executor:  deps.Executor,
		locks:     deps.Locks,
		bindings:  deps.Bindings,
		utils:     deps.Utils,
		resolvers: make(map[resolverKey]types.RuleResolver),
		now:       time.Now,
	}
	for _, r := range deps.Resolvers {
		key := resolverKey{direction: r.Direction(), resourceType: r.ResourceType()}
		if _, ok := s.resolvers[key]; ok {
			return nil, types.NewMappingError("more than one %s resolver for %s", r.Direction(), r.ResourceType())
		}
		s.resolvers[key] = r
	}
	return s, nil
}

// CreateRequest resolves the rules and the endpoint of input. A nil request
// without error means there is nothing to do.
func (s *Service) CreateRequest(ctx context.Context, reqCtx *types.TransformRequestContext, input types.TransformInput) (*TransformerRequest, error) {
	if reqCtx == nil || input == nil {
		return nil, types.NewFatalError("request context and input must be specified")
	}
	resolver, ok := s.resolvers[resolverKey{direction: reqCtx.Direction, resourceType: reqCtx.ResourceType}]
	if !ok {
		s.config.Logger.Printf("No %s rule resolver for resource type %s, ignoring %s", reqCtx.Direction, reqCtx.ResourceType, input.Key())
		return nil, nil
	}
	rules, err := resolver.ResolveRules(ctx, reqCtx.ResourceType, input)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		s.config.Logger.Printf("No rule for %s", input.Key())
		return nil, nil
	}
	endpoint, err := resolver.ResolveEndpoint(ctx, reqCtx, input, rules)
	if err != nil {
		return nil, err
	}
	if endpoint == nil {
		s.config.Logger.Printf("No active endpoint for %s", input.Key())
		return nil, nil
	}

	client := endpoint.Client
	version := client.FhirVersion
	if version == "" {
		version = types.R4
	}
	username := client.TrackerUsername
	if username == "" {
		username = s.config.TrackerUsername
	}
	tctx := &types.TransformerContext{
		Version:          version,
		Direction:        reqCtx.Direction,
		ClientID:         client.ID,
		ClientResourceID: endpoint.ID,
		ResourceType:     reqCtx.ResourceType,
		IdentifierSystem: client.IdentifierSystem,
		TrackerUsername:  username,
		Now:              s.now(),
	}
	return newTransformerRequest(tctx, reqCtx, input, rules, s.utils.Variables(version), endpoint), nil
}

// Transform tries the remaining rules of request in order and returns the
// outcome of the first one that produces a resource. A nil outcome means
// the request is exhausted.
//
// When ctx carries no lock context one is begun for the call. It is closed
// when no outcome is produced and otherwise handed to the caller through
// TransformOutcome.Locks. Continuing with TransformOutcome.Next on such a ctx
// closes the locks of the previous outcome first, so persist an outcome
// before continuing, or use TransformAll which keeps one context for all
// outcomes.
func (s *Service) Transform(ctx context.Context, request *TransformerRequest) (*TransformOutcome, error) {
	if request == nil {
		return nil, nil
	}
	lockCtx, ok := s.locks.Current(ctx)
	owned := false
	if !ok {
		if request.held != nil {
			_ = request.held.Close()
			request.held = nil
		}
		var err error
		if ctx, lockCtx, err = s.locks.Begin(ctx); err != nil {
			return nil, err
		}
		owned = true
	}
	finish := func() {
		if owned {
			_ = lockCtx.Close()
		}
	}

	tctx := request.Context()
	for {
		info, ok := request.NextRule()
		if !ok {
			finish()
			if request.outcomes == 0 {
				s.config.Logger.Printf("No matching rule for %s", request.input.Key())
			}
			return nil, nil
		}
		rule := info.Rule()
		heldBefore := lockCtx.Keys()
		input := request.input.Clone()
		vars := request.variables(input)

		if script := rule.GetApplicableScript(tctx.Direction); script != nil {
			v, err := s.executor.Execute(ctx, script, tctx.Version, vars, types.ResultAny)
			if err != nil {
				s.fail(lockCtx, owned)
				s.config.Logger.Printf("Applicability of rule %s failed for %s: %s", info, request.input.Key(), err)
				return nil, err
			}
			// only a boolean true applies the rule
			if applicable, _ := v.(bool); !applicable {
				s.config.Metrics.IncrementSkipped()
				continue
			}
		}

		transformer, ok := s.bindings.Get(tctx.Direction, tctx.Version, rule.GetTrackerResourceType())
		if !ok {
			s.fail(lockCtx, owned)
			return nil, types.NewMappingError("no %s transformer for version %s and tracker resource type %s (rule %s)",
				tctx.Direction, tctx.Version, rule.GetTrackerResourceType(), info)
		}
		result, err := transformer.Transform(ctx, tctx, input, info, vars)
		if err != nil {
			s.fail(lockCtx, owned)
			s.config.Logger.Printf("Rule %s failed for %s: %s", info, request.input.Key(), err)
			return nil, err
		}
		if result == nil || result.Resource == nil {
			releaseAttempt(lockCtx, heldBefore)
			s.config.Metrics.IncrementDeclined()
			continue
		}

		request.outcomes++
		request.lastRuleID = rule.GetID()
		outcome := &TransformOutcome{Resource: result.Resource, Related: result.Related, Rule: info}
		if !request.IsLastRule() {
			outcome.Next = request
		}
		if owned {
			outcome.Locks = lockCtx
			request.held = lockCtx
		}
		s.config.Metrics.IncrementOutcome(string(tctx.Direction), string(rule.GetTrackerResourceType()))
		s.config.Logger.Printf("Rule %s used successfully for transformation of %s", info, request.input.Key())
		return outcome, nil
	}
}

func (s *Service) fail(lockCtx types.LockContext, owned bool) {
	s.config.Metrics.IncrementFailed()
	if owned {
		_ = lockCtx.Close()
	} else {
		_ = lockCtx.UnlockAll()
	}
}

// releaseAttempt unlocks the keys acquired since held was taken.
func releaseAttempt(lockCtx types.LockContext, held []string) {
	for _, key := range lockCtx.Keys() {
		if !str.Contains(held, key) {
			_ = lockCtx.Unlock(key)
		}
	}
}

// TransformAll drains request and returns every outcome. persist is called
// for each outcome while the locks of the transformation are still held.
func (s *Service) TransformAll(ctx context.Context, request *TransformerRequest, persist func(ctx context.Context, outcome *TransformOutcome) error) ([]*TransformOutcome, error) {
	if _, ok := s.locks.Current(ctx); !ok {
		var lockCtx types.LockContext
		var err error
		if ctx, lockCtx, err = s.locks.Begin(ctx); err != nil {
			return nil, err
		}
		defer func() { _ = lockCtx.Close() }()
	}
	var outcomes []*TransformOutcome
	for request != nil {
		outcome, err := s.Transform(ctx, request)
		if err != nil {
			return outcomes, err
		}
		if outcome == nil {
			break
		}
		if persist != nil {
			if err := persist(ctx, outcome); err != nil {
				return outcomes, err
			}
		}
		outcomes = append(outcomes, outcome)
		request = outcome.Next
	}
	return outcomes, nil
}
