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

package scripted

import (
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/tracker"
)

// FhirInput is the FHIR resource input of an import.
type FhirInput struct {
	Resource fhir.Resource
}

func NewFhirInput(resource fhir.Resource) *FhirInput {
	return &FhirInput{Resource: resource}
}

func (i *FhirInput) Key() string {
	return i.Resource.GetResourceType() + "/" + i.Resource.GetID()
}

func (i *FhirInput) Value() interface{} {
	return i.Resource
}

// Clone falls back to the same resource when it cannot be copied; such
// resources are opaque to scripts anyway.
func (i *FhirInput) Clone() types.TransformInput {
	c, err := fhir.Clone(i.Resource)
	if err != nil {
		return &FhirInput{Resource: i.Resource}
	}
	return &FhirInput{Resource: c}
}

// TrackerInput is the tracker resource input of an export. Scripts only get
// read access to it.
type TrackerInput struct {
	Resource tracker.Resource
}

func NewTrackerInput(resource tracker.Resource) *TrackerInput {
	return &TrackerInput{Resource: resource}
}

func (i *TrackerInput) Key() string {
	return string(i.Resource.GetResourceType()) + "/" + i.Resource.GetID()
}

func (i *TrackerInput) Value() interface{} {
	return NewImmutableScriptedResource(i.Resource)
}

func (i *TrackerInput) Clone() types.TransformInput {
	return &TrackerInput{Resource: tracker.Clone(i.Resource)}
}

var _ types.TransformInput = (*FhirInput)(nil)
var _ types.TransformInput = (*TrackerInput)(nil)
