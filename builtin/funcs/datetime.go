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
	"github.com/rulego/fhiradapter/utils/cast"
)

const DateTimeUtilsName = "dateTimeUtils"

type DateTimeUtils struct {
	now func() time.Time
}

func NewDateTimeUtils() *DateTimeUtils {
	return &DateTimeUtils{now: time.Now}
}

func (u *DateTimeUtils) ScriptAttrName() string        { return DateTimeUtilsName }
func (u *DateTimeUtils) Versions() []types.FhirVersion { return allVersions() }

// IsValidNow reports whether now lies within the period. A missing period or bound is open.
func (u *DateTimeUtils) IsValidNow(period interface{}) bool {
	return isValidAt(period, u.now())
}

func isValidAt(period interface{}, now time.Time) bool {
	p, ok := toPeriod(period)
	if !ok {
		return true
	}
	if p.Start != "" {
		if start, err := cast.ToTimeE(p.Start); err == nil && now.Before(start) {
			return false
		}
	}
	if p.End != "" {
		if end, err := cast.ToTimeE(p.End); err == nil && now.After(end) {
			return false
		}
	}
	return true
}

// GetPreciseDate returns the date only if it has at least day precision.
func (u *DateTimeUtils) GetPreciseDate(value interface{}) (interface{}, error) {
	s, isString := value.(string)
	if isString && len(s) < len("2006-01-02") {
		return nil, nil
	}
	return u.ToDate(value)
}

// ToDate converts FHIR date strings and times to a time value; nil stays nil.
func (u *DateTimeUtils) ToDate(value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && s == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(value)
	if err != nil {
		return nil, types.NewDataError("invalid date %v: %s", value, err)
	}
	return t, nil
}

// GetAge returns the age in whole years at now.
func (u *DateTimeUtils) GetAge(birthDate interface{}) (interface{}, error) {
	d, err := u.ToDate(birthDate)
	if err != nil || d == nil {
		return nil, err
	}
	birth := d.(time.Time)
	now := u.now()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age, nil
}
