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

// Package script compiles, caches and runs the mapping scripts of rules.
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/cache"
	"github.com/rulego/fhiradapter/utils/cast"
	"github.com/rulego/fhiradapter/utils/expr"
	"github.com/rulego/fhiradapter/utils/js"
)

// Executor is the default ScriptExecutor. Compiled scripts are cached by
// script identity and language.
type Executor struct {
	config types.Config
	cache  *cache.LRUCache[string, types.ScriptEngine]
}

// NewExecutor creates an executor using the script cache limits of config.
func NewExecutor(config types.Config) (*Executor, error) {
	size := config.MaxCachedScripts
	if size <= 0 {
		size = types.DefaultMaxCachedScripts
	}
	c, err := cache.NewLRUCache[string, types.ScriptEngine](size, config.MaxCachedScriptLifetime)
	if err != nil {
		return nil, err
	}
	return &Executor{config: config, cache: c}, nil
}

// Execute runs script for version. The scope of the script is exactly
// variables plus the script args exposed as "args".
func (e *Executor) Execute(ctx context.Context, script *types.ExecutableScript, version types.FhirVersion,
	variables map[string]interface{}, expected types.ScriptResultType) (interface{}, error) {
	if script == nil {
		return nil, types.NewFatalError("no script has been specified")
	}
	if !script.SupportsVersion(version) {
		return nil, types.NewMappingError("script %s does not support FHIR version %s", script, version)
	}
	engine, err := e.engine(script)
	if err != nil {
		return nil, err
	}

	scope := make(map[string]interface{}, len(variables)+1)
	for k, v := range variables {
		scope[k] = v
	}
	args := make(map[string]interface{}, len(script.Args))
	for k, v := range script.Args {
		args[k] = v
	}
	scope[types.ArgsVar] = args

	start := time.Now()
	result, err := engine.Execute(ctx, scope)
	e.config.Metrics.ObserveScript(time.Since(start).Seconds())
	if err != nil {
		var terr *types.TransformerError
		if errors.As(err, &terr) {
			// mapping and data errors raised by utilities keep their class
			return nil, err
		}
		return nil, types.NewScriptError(err, "error while executing script %s", script)
	}
	converted, err := Convert(result, expected)
	if err != nil {
		return nil, types.NewScriptError(err, "script %s returned an unexpected result", script)
	}
	return converted, nil
}

// ExecuteBool runs a boolean script. A nil result is false.
func (e *Executor) ExecuteBool(ctx context.Context, script *types.ExecutableScript, version types.FhirVersion,
	variables map[string]interface{}) (bool, error) {
	v, err := e.Execute(ctx, script, version, variables, types.ResultBoolean)
	if err != nil || v == nil {
		return false, err
	}
	return v.(bool), nil
}

// ExecuteString runs a script returning a string. A nil result is the empty string.
func (e *Executor) ExecuteString(ctx context.Context, script *types.ExecutableScript, version types.FhirVersion,
	variables map[string]interface{}) (string, error) {
	v, err := e.Execute(ctx, script, version, variables, types.ResultString)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached compiled scripts.
func (e *Executor) Len() int {
	return e.cache.Len()
}

// Evict removes the compiled form of script, e.g. after its code changed.
func (e *Executor) Evict(script *types.ExecutableScript) {
	e.cache.Remove(cacheKey(script))
}

func (e *Executor) engine(script *types.ExecutableScript) (types.ScriptEngine, error) {
	return e.cache.GetOrCreate(cacheKey(script), func() (types.ScriptEngine, error) {
		var engine types.ScriptEngine
		var err error
		switch script.Language {
		case types.Js, "":
			engine, err = js.NewJsEngine(e.config, script.String(), script.Code)
		case types.Expr:
			engine, err = expr.NewExprEngine(script.String(), script.Code)
		default:
			return nil, types.NewMappingError("unsupported script language %s of script %s", script.Language, script)
		}
		if err != nil {
			return nil, types.NewScriptError(err, "error while compiling script %s", script)
		}
		return engine, nil
	})
}

func cacheKey(script *types.ExecutableScript) string {
	language := script.Language
	if language == "" {
		language = types.Js
	}
	return script.CacheID() + "|" + string(language)
}

// Convert converts a script result to the expected type. Nil stays nil.
func Convert(value interface{}, expected types.ScriptResultType) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch expected {
	case types.ResultBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected a boolean but got %T", value)
		}
		return b, nil
	case types.ResultString:
		return cast.ToStringE(value)
	case types.ResultNumber:
		return cast.ToFloat64E(value)
	case types.ResultInteger:
		return cast.ToIntE(value)
	case types.ResultAny, "":
		return value, nil
	default:
		return nil, fmt.Errorf("unsupported result type %s", expected)
	}
}

var _ types.ScriptExecutor = (*Executor)(nil)
