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

// Package scripted contains the objects mapping scripts work with: the
// wrapped input resources and writable facades of tracker resources which
// record what a script actually changed.
package scripted

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/rulego/fhiradapter/utils/cast"
	"github.com/rulego/fhiradapter/utils/maps"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04:05.000"
)

// toTime converts a script value to a time, nil for nil or empty values.
func toTime(value interface{}) (*time.Time, error) {
	if s, ok := value.(string); ok && s == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(value)
	if err != nil {
		return nil, types.NewDataError("%s", err)
	}
	if t.IsZero() {
		return nil, nil
	}
	return &t, nil
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// toLocation converts a tracker location, a [longitude, latitude] pair or
// an object with longitude and latitude.
func toLocation(value interface{}) (*tracker.Location, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case tracker.Location:
		return &v, nil
	case *tracker.Location:
		return v, nil
	case map[string]interface{}:
		var l tracker.Location
		if err := maps.Map2Struct(v, &l); err != nil {
			return nil, types.NewDataError("invalid coordinate %v: %s", value, err)
		}
		return &l, nil
	case []interface{}:
		if len(v) == 2 {
			lng, err1 := cast.ToFloat64E(v[0])
			lat, err2 := cast.ToFloat64E(v[1])
			if err1 == nil && err2 == nil {
				return &tracker.Location{Longitude: lng, Latitude: lat}, nil
			}
		}
	}
	return nil, types.NewDataError("invalid coordinate %v", value)
}

func equalLocation(a, b *tracker.Location) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// convertValue converts a script value to the string form of the value type.
// The second result is false when the value is nil.
func convertValue(value interface{}, valueType tracker.ValueType) (string, bool, error) {
	if value == nil {
		return "", false, nil
	}
	switch valueType {
	case tracker.ValueBoolean, tracker.ValueTrueOnly:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return "", false, err
		}
		if valueType == tracker.ValueTrueOnly && !b {
			return "", false, nil
		}
		return strconv.FormatBool(b), true, nil
	case tracker.ValueInteger:
		i, err := cast.ToIntE(value)
		if err != nil {
			return "", false, err
		}
		return strconv.Itoa(i), true, nil
	case tracker.ValueNumber:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return "", false, err
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true, nil
	case tracker.ValueDate:
		t, err := cast.ToTimeE(value)
		if err != nil {
			return "", false, err
		}
		return t.Format(dateLayout), true, nil
	case tracker.ValueDateTime:
		t, err := cast.ToTimeE(value)
		if err != nil {
			return "", false, err
		}
		return t.Format(dateTimeLayout), true, nil
	case tracker.ValueCoordinate:
		l, err := toLocation(value)
		if err != nil {
			return "", false, err
		}
		if l == nil {
			return "", false, nil
		}
		return fmt.Sprintf("[%s,%s]", strconv.FormatFloat(l.Longitude, 'f', -1, 64),
			strconv.FormatFloat(l.Latitude, 'f', -1, 64)), true, nil
	default:
		s, err := cast.ToStringE(value)
		return s, true, err
	}
}

var defaultIntegerOptionPattern = regexp.MustCompile(`^(\d+)$`)

// integerOptionCodes returns the option codes holding an integer, ordered by
// that integer. pattern must contain one group that extracts the integer.
func integerOptionCodes(optionSet *tracker.OptionSet, pattern *regexp.Regexp) []string {
	type entry struct {
		code  string
		value int
	}
	var entries []entry
	for _, o := range optionSet.Options {
		if v, ok := integerOptionValue(o.Code, pattern); ok {
			entries = append(entries, entry{code: o.Code, value: v})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].value < entries[j].value })
	codes := make([]string, len(entries))
	for i, e := range entries {
		codes[i] = e.code
	}
	return codes
}

func integerOptionValue(code string, pattern *regexp.Regexp) (int, bool) {
	if pattern == nil {
		pattern = defaultIntegerOptionPattern
	}
	m := pattern.FindStringSubmatch(code)
	if len(m) < 2 {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	return v, err == nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, types.NewMappingError("invalid option value pattern %s: %s", pattern, err)
	}
	return re, nil
}

func parseReference(ref interface{}) (tracker.Reference, error) {
	switch r := ref.(type) {
	case tracker.Reference:
		return r, nil
	case *tracker.Reference:
		if r != nil {
			return *r, nil
		}
	case string:
		parsed, err := tracker.ParseReference(r)
		if err != nil {
			return tracker.Reference{}, types.NewMappingError("%s", err)
		}
		return parsed, nil
	case map[string]interface{}:
		var parsed tracker.Reference
		if err := maps.Map2Struct(r, &parsed); err == nil && !parsed.IsZero() {
			if parsed.Type == "" {
				parsed.Type = tracker.ReferenceCode
			}
			return parsed, nil
		}
	}
	return tracker.Reference{}, types.NewMappingError("invalid reference %v", ref)
}
