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

// Package transform provides the built-in transformers.
//
// Import transformers turn a FHIR resource into a tracker resource:
//
//   - fhirToTrackedEntity: tracked entity identified by a FHIR identifier
//   - fhirToEnrollment: program enrollment of the referenced tracked entity
//   - fhirToProgramStageEvent: program stage event, enrolling on demand
//
// Export transformers turn a tracker resource into a FHIR resource:
//
//   - trackedEntityToPatient
//   - eventToObservation
//
// Every transformer registers itself with Registry in init. The engine
// instantiates them and binds each instance to the (direction, FHIR
// version, tracker resource type) keys it serves.
//
// 每个转换器在init中注册到Registry，由引擎实例化并绑定。
package transform

import "github.com/rulego/fhiradapter/api/types"

// Registry 内置转换器列表
var Registry = &types.SafeComponentSlice{}
