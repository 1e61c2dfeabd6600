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

package types

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// ScriptLanguage 脚本语言
type ScriptLanguage string

const (
	// Js JavaScript, executed by goja
	Js ScriptLanguage = "Js"
	// Expr expression language, executed by expr-lang
	Expr ScriptLanguage = "Expr"
)

// ScriptResultType is the type a script result is converted to.
type ScriptResultType string

const (
	ResultBoolean ScriptResultType = "BOOLEAN"
	ResultString  ScriptResultType = "STRING"
	ResultNumber  ScriptResultType = "DOUBLE"
	ResultInteger ScriptResultType = "INTEGER"
	ResultAny     ScriptResultType = "ANY"
)

// ExecutableScript is a script stored as metadata together with the
// argument values of one usage.
type ExecutableScript struct {
	ID       string
	Name     string
	Language ScriptLanguage
	Code     string
	// Versions 支持的FHIR版本，为空表示全部支持
	Versions []FhirVersion
	Args     map[string]interface{}
}

// CacheID is the identity of the compiled form of the script.
func (s *ExecutableScript) CacheID() string {
	if s.ID != "" {
		return s.ID
	}
	sum := sha256.Sum256([]byte(s.Code))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// SupportsVersion reports whether the script may run for the version.
func (s *ExecutableScript) SupportsVersion(version FhirVersion) bool {
	if len(s.Versions) == 0 {
		return true
	}
	for _, v := range s.Versions {
		if v == version {
			return true
		}
	}
	return false
}

func (s *ExecutableScript) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.CacheID()
}

// ScriptEngine runs one compiled script.
type ScriptEngine interface {
	Execute(ctx context.Context, variables map[string]interface{}) (interface{}, error)
}

// ScriptExecutor compiles, caches and runs executable scripts.
// Every failure is returned as an error wrapping ErrScriptExecution.
type ScriptExecutor interface {
	Execute(ctx context.Context, script *ExecutableScript, version FhirVersion, variables map[string]interface{}, expected ScriptResultType) (interface{}, error)
}
