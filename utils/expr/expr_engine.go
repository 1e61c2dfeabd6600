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

// Package expr runs expr-lang expressions as mapping scripts.
package expr

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/fhiradapter/api/types"
)

// ExprEngine holds one compiled expression. The variables of an execution are its environment.
type ExprEngine struct {
	name    string
	program *vm.Program
}

func NewExprEngine(name string, code string) (*ExprEngine, error) {
	program, err := expr.Compile(code, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	return &ExprEngine{name: name, program: program}, nil
}

func (e *ExprEngine) Execute(ctx context.Context, variables map[string]interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	env := variables
	if env == nil {
		env = map[string]interface{}{}
	}
	return expr.Run(e.program, env)
}

func (e *ExprEngine) String() string {
	return e.name
}

var _ types.ScriptEngine = (*ExprEngine)(nil)
