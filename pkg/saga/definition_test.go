// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package saga

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoBuilder(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

func validDefinition() *Definition {
	return &Definition{
		SagaType: "test-saga",
		Steps: []StepDefinition{
			{
				Name:              "first",
				Destination:       "svc-a",
				CommandType:       "DoFirst",
				CompensationType:  "UndoFirst",
				BuildCommand:      echoBuilder,
				BuildCompensation: echoBuilder,
			},
			{
				Name:         "second",
				Destination:  "svc-b",
				CommandType:  "DoSecond",
				BuildCommand: echoBuilder,
			},
		},
	}
}

func TestDefinitionValidate(t *testing.T) {
	require.NoError(t, validDefinition().Validate())

	tests := []struct {
		name   string
		mutate func(*Definition)
	}{
		{"empty type", func(d *Definition) { d.SagaType = "" }},
		{"no steps", func(d *Definition) { d.Steps = nil }},
		{"unnamed step", func(d *Definition) { d.Steps[0].Name = "" }},
		{"duplicate name", func(d *Definition) { d.Steps[1].Name = "first" }},
		{"no destination", func(d *Definition) { d.Steps[0].Destination = "" }},
		{"no command type", func(d *Definition) { d.Steps[0].CommandType = "" }},
		{"no command builder", func(d *Definition) { d.Steps[0].BuildCommand = nil }},
		{"compensation type without builder", func(d *Definition) { d.Steps[0].BuildCompensation = nil }},
		{"compensation builder without type", func(d *Definition) { d.Steps[0].CompensationType = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := def.Validate()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestDefinitionStepAt(t *testing.T) {
	def := validDefinition()

	step, err := def.StepAt(1)
	require.NoError(t, err)
	assert.Equal(t, "second", step.Name)
	assert.False(t, step.Compensable())

	step, err = def.StepAt(0)
	require.NoError(t, err)
	assert.True(t, step.Compensable())

	_, err = def.StepAt(-1)
	assert.Error(t, err)
	_, err = def.StepAt(2)
	assert.Error(t, err)

	assert.Equal(t, 2, def.StepCount())
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(validDefinition()))

	err := registry.Register(validDefinition())
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	err = registry.Register(nil)
	require.Error(t, err)

	def, ok := registry.Get("test-saga")
	require.True(t, ok)
	assert.Equal(t, "test-saga", def.SagaType)

	_, ok = registry.Get("unknown")
	assert.False(t, ok)

	other := validDefinition()
	other.SagaType = "another-saga"
	require.NoError(t, registry.Register(other))
	assert.Equal(t, []string{"another-saga", "test-saga"}, registry.Types())
}

func TestRegistryRejectsInvalidDefinition(t *testing.T) {
	registry := NewRegistry()
	def := validDefinition()
	def.Steps = nil

	err := registry.Register(def)
	require.Error(t, err)
	_, ok := registry.Get("test-saga")
	assert.False(t, ok)
}
