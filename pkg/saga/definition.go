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
	"fmt"
	"sort"
	"sync"
)

// PayloadBuilder maps the saga's opaque business payload to the concrete,
// step-specific command payload. Builders are the boundary where the opaque
// payload is decoded into typed structures; the engine itself never inspects
// payloads.
type PayloadBuilder func(sagaID string, payload json.RawMessage) (json.RawMessage, error)

// StepDefinition is one entry in a saga's ordered step table. A step with an
// empty CompensationType is non-reversible (e.g. sending a notification) and
// is skipped silently during the unwind walk.
type StepDefinition struct {
	// Name identifies the step and correlates events to it.
	Name string

	// Destination names the participant service the command is routed to.
	Destination string

	// CommandType is the forward command type sent to the participant.
	CommandType string

	// CompensationType is the compensating command type, empty when the step
	// cannot be undone.
	CompensationType string

	// BuildCommand produces the forward command payload.
	BuildCommand PayloadBuilder

	// BuildCompensation produces the compensating command payload. Must be
	// set exactly when CompensationType is non-empty.
	BuildCompensation PayloadBuilder
}

// Compensable reports whether the step has a compensating command.
func (s *StepDefinition) Compensable() bool {
	return s.CompensationType != ""
}

// Definition is the static, code-level step graph for one saga type.
// Definitions are pure data plus payload mapping logic; they are never
// persisted.
type Definition struct {
	// SagaType identifies the definition, e.g. "payment-processing".
	SagaType string

	// Steps is the ordered forward execution sequence.
	Steps []StepDefinition

	// RetryPolicy overrides the orchestrator's default dispatch retry policy
	// for this saga type. Optional.
	RetryPolicy RetryPolicy
}

// Validate checks the definition for correctness and consistency.
func (d *Definition) Validate() error {
	if d.SagaType == "" {
		return NewValidationError("saga definition has no type")
	}
	if len(d.Steps) == 0 {
		return NewValidationError("saga definition %q has no steps", d.SagaType)
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.Name == "" {
			return NewValidationError("saga %q: step %d has no name", d.SagaType, i)
		}
		if _, dup := seen[step.Name]; dup {
			return NewValidationError("saga %q: duplicate step name %q", d.SagaType, step.Name)
		}
		seen[step.Name] = struct{}{}
		if step.Destination == "" {
			return NewValidationError("saga %q: step %q has no destination", d.SagaType, step.Name)
		}
		if step.CommandType == "" {
			return NewValidationError("saga %q: step %q has no command type", d.SagaType, step.Name)
		}
		if step.BuildCommand == nil {
			return NewValidationError("saga %q: step %q has no command builder", d.SagaType, step.Name)
		}
		if step.Compensable() != (step.BuildCompensation != nil) {
			return NewValidationError("saga %q: step %q compensation type and builder must be set together", d.SagaType, step.Name)
		}
	}
	return nil
}

// StepAt returns the step definition at the given index.
func (d *Definition) StepAt(index int) (*StepDefinition, error) {
	if index < 0 || index >= len(d.Steps) {
		return nil, fmt.Errorf("saga %q: step index %d out of range [0,%d)", d.SagaType, index, len(d.Steps))
	}
	return &d.Steps[index], nil
}

// StepCount returns the number of forward steps.
func (d *Definition) StepCount() int {
	return len(d.Steps)
}

// Registry maps saga type names to their definitions. It is populated once
// at startup and read concurrently afterwards.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register validates and adds a definition. Registering the same saga type
// twice is an error.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return NewValidationError("cannot register nil saga definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.SagaType]; exists {
		return NewValidationError("saga type %q already registered", def.SagaType)
	}
	r.defs[def.SagaType] = def
	return nil
}

// Get returns the definition for the saga type, or false when unknown.
func (r *Registry) Get(sagaType string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[sagaType]
	return def, ok
}

// Types returns the registered saga type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
