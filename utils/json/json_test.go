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

package json

import (
	"encoding/json"
	"testing"

	"github.com/rulego/fhiradapter/api/types/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	dv := tracker.DataValue{DataElementID: "de1", Value: "<5 & rising"}

	data, err := Marshal(dv)
	require.Nil(t, err)
	assert.Equal(t, `{"dataElement":"de1","value":"<5 & rising","providedElsewhere":false}`, string(data))

	escaped, err := Marshal2(dv, true)
	require.Nil(t, err)
	std, _ := json.Marshal(dv)
	assert.Equal(t, string(std), string(escaped))

	_, err = Marshal(func() {})
	assert.NotNil(t, err)
}

func TestUnmarshal(t *testing.T) {
	var dv tracker.DataValue
	require.Nil(t, Unmarshal([]byte(`{"dataElement":"de1","value":"72"}`), &dv))
	assert.Equal(t, "72", dv.Value)
	assert.NotNil(t, Unmarshal([]byte(`{`), &dv))
}
