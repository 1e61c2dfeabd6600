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

package types

import (
	"errors"
	"fmt"
	"strings"
)

// FhirVersion identifies the FHIR release a client or server speaks.
type FhirVersion string

const (
	DSTU3 FhirVersion = "DSTU3"
	R4    FhirVersion = "R4"
)

// FhirVersions lists every supported version in ascending order.
var FhirVersions = []FhirVersion{DSTU3, R4}

// ParseFhirVersion 解析版本字符串，不区分大小写
func ParseFhirVersion(s string) (FhirVersion, error) {
	for _, v := range FhirVersions {
		if strings.EqualFold(string(v), s) {
			return v, nil
		}
	}
	return "", NewMappingError("unsupported FHIR version: %s", s)
}

// Direction is the direction of a transformation.
type Direction string

const (
	// DirectionImport FHIR -> tracker
	DirectionImport Direction = "import"
	// DirectionExport tracker -> FHIR
	DirectionExport Direction = "export"
)

// FhirResourceType FHIR资源类型
type FhirResourceType string

const (
	FhirPatient      FhirResourceType = "Patient"
	FhirObservation  FhirResourceType = "Observation"
	FhirImmunization FhirResourceType = "Immunization"
	FhirOrganization FhirResourceType = "Organization"
	FhirEncounter    FhirResourceType = "Encounter"
)

// FhirOperation is the kind of change applied to a FHIR resource.
type FhirOperation string

const (
	FhirCreate FhirOperation = "create"
	FhirUpdate FhirOperation = "update"
	FhirDelete FhirOperation = "delete"
)

// Script variable names. Every script receives exactly these plus the
// registered utility objects of the active version.
const (
	ContextVar = "context"
	InputVar   = "input"
	OutputVar  = "output"
	ArgsVar    = "args"
)

const (
	// DefaultMaxCachedScripts 默认缓存的已编译脚本最大数量
	DefaultMaxCachedScripts = 10000
	// DefaultStaleSweepSpec cron spec of the stale queue sweep
	DefaultStaleSweepSpec = "@every 1m"
	// DefaultMaxSearchCount upper bound of resources fetched per poll
	DefaultMaxSearchCount = 10000
)

var (
	// ErrMappingConfiguration marks a misconfigured rule, script or unit.
	ErrMappingConfiguration = errors.New("mapping configuration error")
	// ErrData marks an input that does not satisfy a structural expectation.
	ErrData = errors.New("data error")
	// ErrScriptExecution marks a script that failed to compile or threw.
	ErrScriptExecution = errors.New("script execution failed")
	// ErrLockMisuse marks a programming error in lock handling.
	ErrLockMisuse = errors.New("lock misuse")
	// ErrLockInterrupted is returned when waiting for a lock has been interrupted.
	ErrLockInterrupted = errors.New("waiting for lock has been interrupted")
	// ErrFatalTransformer marks a violated internal invariant.
	ErrFatalTransformer = errors.New("fatal transformer error")
	// ErrCacheNotInitialized is returned by a nil namespace cache.
	ErrCacheNotInitialized = errors.New("cache not initialized")
	// ErrQueueStopped is returned when notifying a stopped queue.
	ErrQueueStopped = errors.New("queue has been stopped")
	// ErrNotFound is returned by repositories for unknown ids.
	ErrNotFound = errors.New("not found")
)

// TransformerError carries one of the sentinel kinds above plus an optional cause.
type TransformerError struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *TransformerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), e.Msg, e.Cause.Error())
	}
	return e.Kind.Error() + ": " + e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *TransformerError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(kind error, cause error, format string, args ...interface{}) error {
	return &TransformerError{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func NewMappingError(format string, args ...interface{}) error {
	return newError(ErrMappingConfiguration, nil, format, args...)
}

func NewDataError(format string, args ...interface{}) error {
	return newError(ErrData, nil, format, args...)
}

// NewScriptError wraps an engine failure so that the raw engine error never escapes alone.
func NewScriptError(cause error, format string, args ...interface{}) error {
	return newError(ErrScriptExecution, cause, format, args...)
}

func NewLockMisuseError(format string, args ...interface{}) error {
	return newError(ErrLockMisuse, nil, format, args...)
}

func NewLockInterruptedError(cause error, key string) error {
	return newError(ErrLockInterrupted, cause, "key %s", key)
}

func NewFatalError(format string, args ...interface{}) error {
	return newError(ErrFatalTransformer, nil, format, args...)
}

// IsRetryable reports whether the failed unit of work may be retried later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockInterrupted)
}

// IsConfigurationError reports whether err must abort the whole transform call.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMappingConfiguration) || errors.Is(err, ErrFatalTransformer) || errors.Is(err, ErrLockMisuse)
}
