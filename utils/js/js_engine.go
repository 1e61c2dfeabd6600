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

// Package js runs JavaScript mapping scripts with goja.
//
// Every execution gets a fresh runtime so that variables of one execution
// never become visible to another one. The compiled program is shared and
// is safe for concurrent use.
package js

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rulego/fhiradapter/api/types"
)

// JsEngine goja js engine for one compiled script
type JsEngine struct {
	config  types.Config
	name    string
	program *goja.Program
}

// NewJsEngine compiles the script body. The body is wrapped into a function
// so that scripts may use top level return statements.
func NewJsEngine(config types.Config, name string, code string) (*JsEngine, error) {
	program, err := goja.Compile(name, wrap(code), true)
	if err != nil {
		return nil, err
	}
	return &JsEngine{config: config, name: name, program: program}, nil
}

func wrap(code string) string {
	return "(function(){\n" + code + "\n})()"
}

// NewVm creates a runtime exposing the variables as globals. Go struct fields
// and methods are visible under their json names, methods start lower case.
func (g *JsEngine) NewVm(variables map[string]interface{}) (*goja.Runtime, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for k, v := range variables {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("set variable %s error: %w", k, err)
		}
	}
	return vm, nil
}

// Execute runs the script and exports its result to a Go value.
func (g *JsEngine) Execute(ctx context.Context, variables map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()

	vm, err := g.NewVm(variables)
	if err != nil {
		return nil, err
	}

	timer := g.startTimeout(vm)
	defer g.stopTimeout(timer)
	if ctx != nil && ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			vm.Interrupt(ctx.Err())
		})
		defer stop()
	}

	res, err := vm.RunProgram(g.program)
	if err != nil {
		return nil, err
	}
	return export(res), nil
}

func export(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func (g *JsEngine) String() string {
	return g.name
}

// startTimeout returns nil if timeout is not configured
func (g *JsEngine) startTimeout(vm *goja.Runtime) *time.Timer {
	if g.config.ScriptMaxExecutionTime <= 0 {
		return nil
	}
	return time.AfterFunc(g.config.ScriptMaxExecutionTime, func() {
		vm.Interrupt("execution timeout")
	})
}

func (g *JsEngine) stopTimeout(timer *time.Timer) {
	if timer != nil {
		timer.Stop()
	}
}

var _ types.ScriptEngine = (*JsEngine)(nil)
