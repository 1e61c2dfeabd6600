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

// Package str provides string helpers shared by the stores and the mapping
// utilities.
package str

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rulego/fhiradapter/utils/cast"
)

// ComparatorSeparator 拼接比较值的分隔符
const ComparatorSeparator = "||"

// ConvertDollarPlaceholder 转postgres风格占位符
func ConvertDollarPlaceholder(sql, dbType string) string {
	if dbType == "postgres" || dbType == "pgx" {
		n := 1
		for strings.Contains(sql, "?") {
			sql = strings.Replace(sql, "?", fmt.Sprintf("$%d", n), 1)
			n++
		}
	}
	return sql
}

// ComparatorValue builds a stable sort key for a value. Collections are
// encoded as their size followed by every item so two collections compare
// equal only when their items do.
func ComparatorValue(value interface{}) string {
	var sb strings.Builder
	appendComparatorValue(&sb, value)
	return sb.String()
}

func appendComparatorValue(sb *strings.Builder, value interface{}) {
	if value == nil {
		sb.WriteString(ComparatorSeparator)
		return
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if b, ok := value.([]byte); ok {
			sb.WriteString(ComparatorSeparator)
			sb.WriteString(string(b))
			return
		}
		sb.WriteString(ComparatorSeparator)
		sb.WriteString(fmt.Sprint(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			appendComparatorValue(sb, rv.Index(i).Interface())
		}
		return
	}
	sb.WriteString(ComparatorSeparator)
	sb.WriteString(cast.ToString(value))
}

// Contains 检查切片中是否包含元素
func Contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

// NormalizeEnumName upper cases s and drops underscores and blanks, so
// "kilo_gram", "KiloGram" and "KILO GRAM" share one form.
func NormalizeEnumName(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r == '_' || r == ' ' || r == '-' {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
