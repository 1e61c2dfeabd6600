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
	"context"
	"sync"
	"time"

	"github.com/rulego/fhiradapter/api/types/tracker"
)

// TransformerContext is exposed to scripts as the "context" variable.
type TransformerContext struct {
	Version          FhirVersion `json:"version"`
	Direction        Direction   `json:"direction"`
	ClientID         string      `json:"clientId"`
	ClientResourceID string      `json:"clientResourceId"`
	ResourceType     string      `json:"resourceType"`
	// IdentifierSystem FHIR标识符系统，用于关联tracker中的跟踪实体
	IdentifierSystem string `json:"identifierSystem"`
	TrackerUsername  string `json:"trackerUsername"`
	// Now is fixed when the request is created so that all rules of one request see the same time.
	Now time.Time `json:"now"`
}

// GetVersion is the script accessor of Version.
func (c *TransformerContext) GetVersion() string {
	return string(c.Version)
}

// IsImport reports whether FHIR resources are transformed to tracker resources.
func (c *TransformerContext) IsImport() bool {
	return c.Direction == DirectionImport
}

// TransformRequestContext describes where an input resource comes from.
type TransformRequestContext struct {
	Direction Direction
	// ResourceType FHIR resource type for imports, tracker resource type for exports
	ResourceType string
	// ClientResourceID the client resource that delivered the input, empty for exports
	ClientResourceID string
	ReceivedAt       time.Time
}

// TransformInput is the input resource of one transformation request.
type TransformInput interface {
	// Key identifies the input in logs, e.g. "Patient/123".
	Key() string
	// Value is what scripts see as the "input" variable.
	Value() interface{}
	// Clone returns an independent copy so that changes made by one rule attempt never reach another.
	Clone() TransformInput
}

// TransformResult is what a transformer produced for one rule.
type TransformResult struct {
	// Resource tracker.Resource on import, fhir.Resource on export
	Resource interface{}
	// Related resources must be persisted before Resource (e.g. an enrollment created for an event).
	Related []interface{}
}

// Transformer turns one input into one output for a rule of its resource type.
// A nil result without error means the transformer declined after inspecting the input.
type Transformer interface {
	// Type 返回组件类型，注册表中唯一
	Type() string
	New() Transformer
	Init(config Config, deps TransformerDeps) error
	Direction() Direction
	Versions() []FhirVersion
	TrackerResourceType() TrackerResourceType
	Transform(ctx context.Context, tctx *TransformerContext, input TransformInput, rule RuleInfo, variables map[string]interface{}) (*TransformResult, error)
}

// TransformerDeps are the collaborators transformers are initialised with.
type TransformerDeps struct {
	ScriptExecutor ScriptExecutor
	Locks          LockManager
	Tracker        TrackerRepository
	Metadata       TrackerMetadataRepository
}

// TransformerUtils is a utility object exposed to scripts under ScriptAttrName.
type TransformerUtils interface {
	ScriptAttrName() string
	Versions() []FhirVersion
}

// RuleResolver selects the rules and endpoint for inputs of one resource type.
type RuleResolver interface {
	Direction() Direction
	ResourceType() string
	// ResolveRules returns the enabled candidate rules in a stable order; empty means nothing to do.
	ResolveRules(ctx context.Context, resourceType string, input TransformInput) ([]RuleInfo, error)
	// ResolveEndpoint returns nil when no active integration owns the input.
	ResolveEndpoint(ctx context.Context, requestCtx *TransformRequestContext, input TransformInput, rules []RuleInfo) (*ClientResource, error)
}

// LockManager hands out lock contexts. At most one context may be active
// per context.Context chain.
type LockManager interface {
	Begin(ctx context.Context) (context.Context, LockContext, error)
	Current(ctx context.Context) (LockContext, bool)
}

// LockContext holds the locks acquired by one logical execution.
type LockContext interface {
	// Lock blocks until key is free. A cancelled ctx ends the wait with ErrLockInterrupted.
	Lock(ctx context.Context, key string) error
	Unlock(key string) error
	UnlockAll() error
	// Close releases every lock and detaches the context.
	Close() error
	Keys() []string
}

// SafeComponentSlice 安全的组件列表切片
type SafeComponentSlice struct {
	//组件列表
	components []Transformer
	sync.Mutex
}

// Add 线程安全地添加元素
func (p *SafeComponentSlice) Add(transformers ...Transformer) {
	p.Lock()
	defer p.Unlock()
	p.components = append(p.components, transformers...)
}

// Components 获取组件列表
func (p *SafeComponentSlice) Components() []Transformer {
	p.Lock()
	defer p.Unlock()
	return append([]Transformer(nil), p.components...)
}

// SafeUtilsSlice 安全的脚本工具对象列表
type SafeUtilsSlice struct {
	utils []TransformerUtils
	sync.Mutex
}

func (p *SafeUtilsSlice) Add(utils ...TransformerUtils) {
	p.Lock()
	defer p.Unlock()
	p.utils = append(p.utils, utils...)
}

func (p *SafeUtilsSlice) Utils() []TransformerUtils {
	p.Lock()
	defer p.Unlock()
	return append([]TransformerUtils(nil), p.utils...)
}

// TrackerRepository reads and writes tracker data.
type TrackerRepository interface {
	FindTrackedEntity(ctx context.Context, id string) (*tracker.TrackedEntity, error)
	// FindTrackedEntityByIdentifier returns nil without error when nothing matches.
	FindTrackedEntityByIdentifier(ctx context.Context, typeID, attributeID, value string) (*tracker.TrackedEntity, error)
	// FindActiveEnrollment returns nil without error when the entity is not enrolled.
	FindActiveEnrollment(ctx context.Context, programID, trackedEntityID string) (*tracker.Enrollment, error)
	FindEvents(ctx context.Context, programStageID, enrollmentID string) ([]*tracker.Event, error)
	// Save creates or updates the resource and returns its id.
	Save(ctx context.Context, resource tracker.Resource) (string, error)
}

// TrackerMetadataRepository resolves tracker metadata references. All finders
// return nil without error when the reference does not match.
type TrackerMetadataRepository interface {
	FindProgram(ctx context.Context, ref tracker.Reference) (*tracker.Program, error)
	FindTrackedEntityType(ctx context.Context, ref tracker.Reference) (*tracker.TrackedEntityTypeDefinition, error)
	FindOrganizationUnit(ctx context.Context, ref tracker.Reference) (*tracker.OrganizationUnit, error)
}
