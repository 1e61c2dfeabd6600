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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPatient = `{"resourceType":"Patient","id":"p1",
	"identifier":[{"system":"http://example.org/national-id","value":"N1"}],
	"name":[{"given":["Ann"]}],"birthDate":"2020-01-05"}`

// writeConfig writes an ini file using the shared test mapping.
func writeConfig(t *testing.T) (dir, file string) {
	dir = t.TempDir()
	mapping, err := filepath.Abs("../../store/memory/testdata/mapping.yaml")
	require.Nil(t, err)
	file = filepath.Join(dir, "adapter.ini")
	require.Nil(t, os.WriteFile(file, []byte("mapping_file = "+mapping+"\n\n[log]\nfile = "+filepath.Join(dir, "adapter.log")+"\n"), 0644))
	return dir, file
}

func execute(args ...string) (string, error) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	out, err := execute("--version")
	require.Nil(t, err)
	assert.Contains(t, out, version)

	for _, name := range []string{"serve", "transform", "validate"} {
		cmd, _, err := NewRootCommand().Find([]string{name})
		require.Nil(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestValidateCommand(t *testing.T) {
	_, configFile := writeConfig(t)
	out, err := execute("validate", "-c", configFile)
	require.Nil(t, err)
	assert.Contains(t, out, "is valid: 3 client resources")

	_, err = execute("validate", "-c", filepath.Join(t.TempDir(), "missing.ini"))
	assert.NotNil(t, err)
}

func TestTransformCommand(t *testing.T) {
	dir, configFile := writeConfig(t)
	file := filepath.Join(dir, "patient.json")
	require.Nil(t, os.WriteFile(file, []byte(testPatient), 0644))

	out, err := execute("transform", "-c", configFile, "-r", "cr-patient", file)
	require.Nil(t, err)
	assert.Contains(t, out, "saved 1 tracker resources")

	t.Run("ClientResourceRequired", func(t *testing.T) {
		_, err := execute("transform", "-c", configFile, file)
		assert.NotNil(t, err)
	})

	t.Run("UnknownClientResource", func(t *testing.T) {
		_, err := execute("transform", "-c", configFile, "-r", "nope", file)
		assert.NotNil(t, err)
	})
}
