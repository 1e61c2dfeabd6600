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
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/utils/cast"
)

const ProgramStageUtilsName = "programStageUtils"

// EventDater is implemented by the event wrappers given to scripts.
type EventDater interface {
	GetEventDate() *time.Time
}

type ProgramStageUtils struct{}

func NewProgramStageUtils() *ProgramStageUtils {
	return &ProgramStageUtils{}
}

func (u *ProgramStageUtils) ScriptAttrName() string        { return ProgramStageUtilsName }
func (u *ProgramStageUtils) Versions() []types.FhirVersion { return allVersions() }

// ContainsEventDay reports whether one of the events happened on the day of date.
func (u *ProgramStageUtils) ContainsEventDay(events interface{}, date interface{}) (bool, error) {
	if date == nil {
		return false, nil
	}
	d, err := cast.ToTimeE(date)
	if err != nil {
		return false, types.NewDataError("invalid date %v: %s", date, err)
	}
	found := false
	forEach(events, func(item interface{}) {
		if found {
			return
		}
		var eventDate *time.Time
		switch e := item.(type) {
		case EventDater:
			eventDate = e.GetEventDate()
		case *tracker.Event:
			eventDate = e.EventDate
		}
		found = eventDate != nil && sameDay(*eventDate, d)
	})
	return found, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
