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
	"time"
)

// Status represents the overall state of a saga instance.
type Status int

const (
	// StatusStarted indicates the saga is created and its first command has not
	// been acknowledged yet.
	StatusStarted Status = iota

	// StatusInProgress indicates the saga is executing forward steps.
	StatusInProgress

	// StatusCompleted indicates every step of the saga completed successfully.
	StatusCompleted

	// StatusCompensating indicates a step failed and previously completed steps
	// are being undone in reverse order.
	StatusCompensating

	// StatusCompensated indicates all reversible completed steps were undone.
	StatusCompensated

	// StatusFailed indicates the saga terminated without full compensation:
	// either no reversible steps existed, a compensation itself failed, or an
	// operator force-failed the instance.
	StatusFailed
)

// String returns the string representation of the Status.
// The uppercase values are the ones persisted in the audit store.
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "STARTED"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCompensating:
		return "COMPENSATING"
	case StatusCompensated:
		return "COMPENSATED"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus converts a persisted status string back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "STARTED":
		return StatusStarted, nil
	case "IN_PROGRESS":
		return StatusInProgress, nil
	case "COMPLETED":
		return StatusCompleted, nil
	case "COMPENSATING":
		return StatusCompensating, nil
	case "COMPENSATED":
		return StatusCompensated, nil
	case "FAILED":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown saga status %q", s)
	}
}

// IsTerminal returns true if the state admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// IsForward returns true while the saga is still executing forward steps.
func (s Status) IsForward() bool {
	return s == StatusStarted || s == StatusInProgress
}

// MarshalJSON encodes the status as its string form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the status from its string form.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StepStatus represents the execution state of an individual step attempt.
type StepStatus int

const (
	// StepStatusStarted indicates the step's command has been logged and
	// dispatched; the saga is waiting for the correlated event.
	StepStatusStarted StepStatus = iota

	// StepStatusCompleted indicates the participant reported success.
	StepStatusCompleted

	// StepStatusFailed indicates the participant reported failure, delivery
	// retries were exhausted, or the step's compensation failed.
	StepStatusFailed

	// StepStatusCompensated indicates a previously completed step was undone.
	StepStatusCompensated
)

// String returns the string representation of the StepStatus.
func (s StepStatus) String() string {
	switch s {
	case StepStatusStarted:
		return "STARTED"
	case StepStatusCompleted:
		return "COMPLETED"
	case StepStatusFailed:
		return "FAILED"
	case StepStatusCompensated:
		return "COMPENSATED"
	default:
		return "UNKNOWN"
	}
}

// ParseStepStatus converts a persisted step status string back to a StepStatus.
func ParseStepStatus(s string) (StepStatus, error) {
	switch s {
	case "STARTED":
		return StepStatusStarted, nil
	case "COMPLETED":
		return StepStatusCompleted, nil
	case "FAILED":
		return StepStatusFailed, nil
	case "COMPENSATED":
		return StepStatusCompensated, nil
	default:
		return 0, fmt.Errorf("unknown step status %q", s)
	}
}

// IsTerminal returns true once the step attempt reached a final state.
func (s StepStatus) IsTerminal() bool {
	return s != StepStatusStarted
}

// MarshalJSON encodes the step status as its string form.
func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the step status from its string form.
func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseStepStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Instance is one row in the saga_instances table: a single execution of a
// saga definition. The row is mutated in place as the saga progresses;
// Version is the optimistic-concurrency token guarding those mutations.
type Instance struct {
	ID               string          `json:"id"`
	SagaType         string          `json:"saga_type"`
	Status           Status          `json:"status"`
	CurrentStepIndex int             `json:"current_step_index"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int64           `json:"version"`
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	c := *i
	if i.Payload != nil {
		c.Payload = append(json.RawMessage(nil), i.Payload...)
	}
	return &c
}

// StepInstance is one row in the saga_step_instances table. Rows are
// append-only: a new attempt of a step creates a new row rather than
// rewriting history.
type StepInstance struct {
	ID              string          `json:"id"`
	SagaInstanceID  string          `json:"saga_instance_id"`
	StepName        string          `json:"step_name"`
	Status          StepStatus      `json:"status"`
	PayloadSnapshot json.RawMessage `json:"payload_snapshot,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Clone returns a deep copy of the step instance.
func (s *StepInstance) Clone() *StepInstance {
	if s == nil {
		return nil
	}
	c := *s
	if s.PayloadSnapshot != nil {
		c.PayloadSnapshot = append(json.RawMessage(nil), s.PayloadSnapshot...)
	}
	return &c
}

// Command is the message the orchestrator sends to a participant service.
// Participants deduplicate on CommandID and eventually emit exactly one
// correlated Event (success or failure) per command.
type Command struct {
	CommandID   string          `json:"command_id"`
	SagaID      string          `json:"saga_id"`
	StepName    string          `json:"step_name"`
	Type        string          `json:"type"`
	Destination string          `json:"destination"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Event is the outcome message a participant emits back to the orchestrator.
// It correlates to the outstanding step via (SagaID, StepName).
type Event struct {
	EventID      string          `json:"event_id"`
	SagaID       string          `json:"saga_id"`
	StepName     string          `json:"step_name"`
	Timestamp    time.Time       `json:"timestamp"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}
