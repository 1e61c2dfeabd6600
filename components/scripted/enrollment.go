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
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/utils/cast"
	"github.com/rulego/fhiradapter/utils/str"
)

// WritableScriptedEnrollment is the program enrollment exposed to import scripts.
type WritableScriptedEnrollment struct {
	program    *tracker.Program
	enrollment *tracker.Enrollment
}

func NewWritableScriptedEnrollment(program *tracker.Program, enrollment *tracker.Enrollment) *WritableScriptedEnrollment {
	return &WritableScriptedEnrollment{program: program, enrollment: enrollment}
}

func (e *WritableScriptedEnrollment) Unwrap() *tracker.Enrollment {
	return e.enrollment
}

func (e *WritableScriptedEnrollment) GetId() string {
	return e.enrollment.ID
}

func (e *WritableScriptedEnrollment) GetProgramId() string {
	return e.program.ID
}

func (e *WritableScriptedEnrollment) IsNewResource() bool {
	return e.enrollment.NewResource
}

func (e *WritableScriptedEnrollment) GetOrganizationUnitId() string {
	return e.enrollment.OrgUnitID
}

func (e *WritableScriptedEnrollment) SetOrganizationUnitId(id string) bool {
	if id != e.enrollment.OrgUnitID {
		e.enrollment.SetModified()
	}
	e.enrollment.OrgUnitID = id
	return id != ""
}

func (e *WritableScriptedEnrollment) GetEnrollmentDate() *time.Time {
	return e.enrollment.EnrollmentDate
}

func (e *WritableScriptedEnrollment) SetEnrollmentDate(date interface{}) (bool, error) {
	t, err := toTime(date)
	if err != nil {
		return false, err
	}
	if !equalTime(t, e.enrollment.EnrollmentDate) {
		e.enrollment.SetModified()
	}
	e.enrollment.EnrollmentDate = t
	return t != nil, nil
}

func (e *WritableScriptedEnrollment) GetIncidentDate() *time.Time {
	return e.enrollment.IncidentDate
}

func (e *WritableScriptedEnrollment) SetIncidentDate(date interface{}) (bool, error) {
	t, err := toTime(date)
	if err != nil {
		return false, err
	}
	if !equalTime(t, e.enrollment.IncidentDate) {
		e.enrollment.SetModified()
	}
	e.enrollment.IncidentDate = t
	return t != nil, nil
}

func (e *WritableScriptedEnrollment) GetStatus() string {
	return string(e.enrollment.Status)
}

func (e *WritableScriptedEnrollment) SetStatus(status interface{}) (bool, error) {
	var s tracker.EnrollmentStatus
	if status != nil {
		name := str.NormalizeEnumName(cast.ToString(status))
		for _, candidate := range tracker.EnrollmentStatuses {
			if str.NormalizeEnumName(string(candidate)) == name {
				s = candidate
				break
			}
		}
		if s == "" {
			return false, types.NewScriptError(nil, "Enrollment status has not been defined: %v", status)
		}
	}
	if s != e.enrollment.Status {
		e.enrollment.SetModified()
	}
	e.enrollment.Status = s
	return true, nil
}

func (e *WritableScriptedEnrollment) SetCoordinate(coordinate interface{}) (bool, error) {
	l, err := toLocation(coordinate)
	if err != nil {
		return false, err
	}
	if !equalLocation(l, e.enrollment.Coordinate) {
		e.enrollment.SetModified()
	}
	e.enrollment.Coordinate = l
	return true, nil
}

func (e *WritableScriptedEnrollment) IsModified() bool {
	return e.enrollment.IsModified()
}

func (e *WritableScriptedEnrollment) Validate() error {
	if e.enrollment.OrgUnitID == "" {
		return types.NewDataError("Organization unit ID of enrollment has not been specified.")
	}
	if e.enrollment.EnrollmentDate == nil {
		return types.NewDataError("Enrollment date of enrollment has not been specified.")
	}
	if e.enrollment.IncidentDate == nil {
		return types.NewDataError("Incident date of enrollment has not been specified.")
	}
	return nil
}
