/*
 * Copyright 2024 The RuleGo Authors.
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

// Package runtime formats the call stack for panic logs.
package runtime

import (
	"runtime"
	"strconv"
	"strings"
)

// maxFrames 最多记录的调用帧数量
const maxFrames = 32

// Stack returns the call stack of the caller, one "file:line function" per
// line, skipping Stack itself and the function that called it.
func Stack() string {
	pc := make([]uintptr, maxFrames)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	var b strings.Builder
	for {
		f, more := frames.Next()
		b.WriteString(" ")
		b.WriteString(f.File)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteString(" ")
		b.WriteString(f.Function)
		b.WriteString("\n")
		if !more {
			break
		}
	}
	return b.String()
}
