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
	"github.com/rulego/fhiradapter/api/types"
)

// RequestState is the cursor state of a TransformerRequest.
type RequestState int

const (
	// RequestMoreRules rules remain to be tried
	RequestMoreRules RequestState = iota
	// RequestExhausted every rule has been tried
	RequestExhausted
)

func (s RequestState) String() string {
	if s == RequestExhausted {
		return "exhausted"
	}
	return "more_rules"
}

// TransformerRequest is the transformation of one input. It is a cursor over
// the resolved rules: every rule is tried at most once and in order. A
// request is used by one goroutine at a time.
type TransformerRequest struct {
	context    *types.TransformerContext
	reqCtx     *types.TransformRequestContext
	input      types.TransformInput
	rules      []types.RuleInfo
	utils      map[string]interface{}
	endpoint   *types.ClientResource
	cursor     int
	outcomes   int
	lastRuleID string
	// held 服务为上一个结果开启的锁上下文
	held types.LockContext
}

func newTransformerRequest(tctx *types.TransformerContext, reqCtx *types.TransformRequestContext, input types.TransformInput,
	rules []types.RuleInfo, utils map[string]interface{}, endpoint *types.ClientResource) *TransformerRequest {
	return &TransformerRequest{
		context:  tctx,
		reqCtx:   reqCtx,
		input:    input,
		rules:    append([]types.RuleInfo(nil), rules...),
		utils:    utils,
		endpoint: endpoint,
	}
}

// NextRule pops the next untried rule.
func (r *TransformerRequest) NextRule() (types.RuleInfo, bool) {
	if r.cursor >= len(r.rules) {
		return types.RuleInfo{}, false
	}
	rule := r.rules[r.cursor]
	r.cursor++
	return rule, true
}

// IsFirstRule reports whether the rule popped last is the first of the request.
func (r *TransformerRequest) IsFirstRule() bool {
	return r.cursor == 1
}

// IsLastRule reports whether no rule remains after the one popped last.
func (r *TransformerRequest) IsLastRule() bool {
	return r.cursor >= len(r.rules)
}

func (r *TransformerRequest) State() RequestState {
	if r.IsLastRule() {
		return RequestExhausted
	}
	return RequestMoreRules
}

func (r *TransformerRequest) Context() *types.TransformerContext {
	return r.context
}

func (r *TransformerRequest) RequestContext() *types.TransformRequestContext {
	return r.reqCtx
}

func (r *TransformerRequest) Input() types.TransformInput {
	return r.input
}

// Rules returns a copy of the resolved rules.
func (r *TransformerRequest) Rules() []types.RuleInfo {
	return append([]types.RuleInfo(nil), r.rules...)
}

func (r *TransformerRequest) Endpoint() *types.ClientResource {
	return r.endpoint
}

// variables builds the script scope of one attempt.
func (r *TransformerRequest) variables(input types.TransformInput) map[string]interface{} {
	vars := make(map[string]interface{}, len(r.utils)+2)
	for k, v := range r.utils {
		vars[k] = v
	}
	vars[types.ContextVar] = r.context
	vars[types.InputVar] = input.Value()
	return vars
}

// TransformOutcome is one output resource produced by a rule.
type TransformOutcome struct {
	// Resource tracker.Resource on import, fhir.Resource on export
	Resource interface{}
	// Related resources must be persisted before Resource.
	Related []interface{}
	Rule    types.RuleInfo
	// Next continues the request, nil when the rule was the last one.
	Next *TransformerRequest
	// Locks is set when the service began the lock context of the attempt.
	// The caller closes it once the outcome has been persisted.
	Locks types.LockContext
}

// Release closes the lock context the service began for the outcome.
func (o *TransformOutcome) Release() error {
	if o == nil || o.Locks == nil {
		return nil
	}
	return o.Locks.Close()
}
