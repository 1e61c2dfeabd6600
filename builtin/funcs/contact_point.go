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

package funcs

import (
	"sort"
	"strings"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/utils/str"
)

const ContactPointUtilsName = "contactPointUtils"

const (
	ContactPointPhone = "phone"
	ContactPointEmail = "email"
)

// ContactPointUtils selects the preferred contact point of a system.
type ContactPointUtils struct {
	now func() time.Time
}

func NewContactPointUtils() *ContactPointUtils {
	return &ContactPointUtils{now: time.Now}
}

func (u *ContactPointUtils) ScriptAttrName() string        { return ContactPointUtilsName }
func (u *ContactPointUtils) Versions() []types.FhirVersion { return allVersions() }

func (u *ContactPointUtils) GetPhone(contactPoints interface{}) interface{} {
	return u.GetContactPointValue(contactPoints, ContactPointPhone)
}

func (u *ContactPointUtils) GetEmail(contactPoints interface{}) interface{} {
	return u.GetContactPointValue(contactPoints, ContactPointEmail)
}

// GetContactPointValue returns the value of the preferred valid contact point of system, nil if there is none.
func (u *ContactPointUtils) GetContactPointValue(contactPoints interface{}, system string) interface{} {
	cp, ok := SelectContactPoint(toContactPoints(contactPoints), system, u.now())
	if !ok {
		return nil
	}
	return cp.Value
}

// SelectContactPoint filters contact points by system (case insensitive),
// validity at now and a non-empty value, and returns the first one in
// contact point order.
func SelectContactPoint(contactPoints []fhir.ContactPoint, system string, now time.Time) (fhir.ContactPoint, bool) {
	var candidates []fhir.ContactPoint
	for _, cp := range contactPoints {
		if !strings.EqualFold(cp.System, system) || cp.Value == "" {
			continue
		}
		if cp.Period != nil && !isValidAt(cp.Period, now) {
			continue
		}
		candidates = append(candidates, cp)
	}
	if len(candidates) == 0 {
		return fhir.ContactPoint{}, false
	}
	SortContactPoints(candidates)
	return candidates[0], true
}

// SortContactPoints orders current uses before temporary and old ones, then
// by rank, then by a lexical comparator of the value.
func SortContactPoints(contactPoints []fhir.ContactPoint) {
	sort.SliceStable(contactPoints, func(i, j int) bool {
		a, b := contactPoints[i], contactPoints[j]
		if ua, ub := contactPointUseValue(a.Use), contactPointUseValue(b.Use); ua != ub {
			return ua < ub
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return str.ComparatorValue(a.Value) < str.ComparatorValue(b.Value)
	})
}

func contactPointUseValue(use string) int {
	switch strings.ToLower(use) {
	case "old":
		return 8
	case "temp":
		return 5
	default:
		return 0
	}
}
