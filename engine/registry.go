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

package engine

import (
	"errors"
	"sort"
	"sync"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/builtin/funcs"
	"github.com/rulego/fhiradapter/components/transform"
)

// Registry is the default registry of transformer components.
var Registry = new(TransformerRegistry)

// init registers the built-in transformers to the default registry.
func init() {
	for _, t := range transform.Registry.Components() {
		_ = Registry.Register(t)
	}
}

// TransformerRegistry holds transformer prototypes by component type. Build
// instantiates them and binds each instance to the keys it serves.
type TransformerRegistry struct {
	components map[string]types.Transformer
	sync.RWMutex
}

// Register adds a transformer prototype to the registry.
func (r *TransformerRegistry) Register(transformer types.Transformer) error {
	r.Lock()
	defer r.Unlock()
	if r.components == nil {
		r.components = make(map[string]types.Transformer)
	}
	if _, ok := r.components[transformer.Type()]; ok {
		return errors.New("the transformer already exists. transformerType=" + transformer.Type())
	}
	r.components[transformer.Type()] = transformer
	return nil
}

// Unregister removes a transformer prototype by its type.
func (r *TransformerRegistry) Unregister(transformerType string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.components[transformerType]; !ok {
		return errors.New("the transformer does not exist. transformerType=" + transformerType)
	}
	delete(r.components, transformerType)
	return nil
}

// Components returns the registered prototypes ordered by type.
func (r *TransformerRegistry) Components() []types.Transformer {
	r.RLock()
	defer r.RUnlock()
	result := make([]types.Transformer, 0, len(r.components))
	for _, t := range r.components {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type() < result[j].Type() })
	return result
}

// Build creates and initialises one instance per prototype and binds it to
// every (direction, version, tracker resource type) it supports. Two
// instances claiming the same key are a configuration error.
func (r *TransformerRegistry) Build(config types.Config, deps types.TransformerDeps) (*TransformerBindings, error) {
	bindings := &TransformerBindings{transformers: make(map[bindingKey]types.Transformer)}
	for _, prototype := range r.Components() {
		transformer := prototype.New()
		if err := transformer.Init(config, deps); err != nil {
			return nil, types.NewMappingError("init transformer %s: %s", prototype.Type(), err)
		}
		for _, version := range transformer.Versions() {
			key := bindingKey{direction: transformer.Direction(), version: version, resourceType: transformer.TrackerResourceType()}
			if existing, ok := bindings.transformers[key]; ok {
				return nil, types.NewMappingError("transformers %s and %s are both bound to %s", existing.Type(), transformer.Type(), key)
			}
			bindings.transformers[key] = transformer
		}
	}
	return bindings, nil
}

type bindingKey struct {
	direction    types.Direction
	version      types.FhirVersion
	resourceType types.TrackerResourceType
}

func (k bindingKey) String() string {
	return string(k.direction) + "/" + string(k.version) + "/" + string(k.resourceType)
}

// TransformerBindings is the immutable result of TransformerRegistry.Build.
type TransformerBindings struct {
	transformers map[bindingKey]types.Transformer
}

func (b *TransformerBindings) Get(direction types.Direction, version types.FhirVersion, resourceType types.TrackerResourceType) (types.Transformer, bool) {
	t, ok := b.transformers[bindingKey{direction: direction, version: version, resourceType: resourceType}]
	return t, ok
}

func (b *TransformerBindings) Len() int {
	return len(b.transformers)
}

// UtilsRegistry holds the script utility objects per FHIR version.
type UtilsRegistry struct {
	utils map[types.FhirVersion]map[string]types.TransformerUtils
}

// NewUtilsRegistry indexes utils by version and attribute name. Every name in
// required must have exactly one provider for every supported version.
func NewUtilsRegistry(utils []types.TransformerUtils, required []string) (*UtilsRegistry, error) {
	r := &UtilsRegistry{utils: make(map[types.FhirVersion]map[string]types.TransformerUtils)}
	for _, u := range utils {
		for _, version := range u.Versions() {
			byName := r.utils[version]
			if byName == nil {
				byName = make(map[string]types.TransformerUtils)
				r.utils[version] = byName
			}
			if _, ok := byName[u.ScriptAttrName()]; ok {
				return nil, types.NewMappingError("script attribute %s is provided more than once for version %s", u.ScriptAttrName(), version)
			}
			byName[u.ScriptAttrName()] = u
		}
	}
	for _, version := range types.FhirVersions {
		for _, name := range required {
			if _, ok := r.utils[version][name]; !ok {
				return nil, types.NewMappingError("script attribute %s is not provided for version %s", name, version)
			}
		}
	}
	return r, nil
}

// NewDefaultUtilsRegistry creates every built-in utility object.
func NewDefaultUtilsRegistry(deps funcs.Deps) (*UtilsRegistry, error) {
	return NewUtilsRegistry(funcs.NewAll(deps), funcs.RequiredNames)
}

// Variables returns a new map of the utility objects of version keyed by attribute name.
func (r *UtilsRegistry) Variables(version types.FhirVersion) map[string]interface{} {
	byName := r.utils[version]
	vars := make(map[string]interface{}, len(byName))
	for name, u := range byName {
		vars[name] = u
	}
	return vars
}
