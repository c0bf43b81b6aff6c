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

// Package saga defines the contracts and message types of the saga
// orchestration engine: the durable audit store, the state manager that
// enforces lifecycle legality, the participant gateway, and the static
// saga definitions the orchestrator executes.
package saga

import (
	"context"
	"encoding/json"
	"time"
)

// AuditStore is the durable record of saga and step state. It is a pure
// persistence contract: implementations hold no business logic and never
// decide state-machine legality, that is the state manager's job.
//
// Saga instance rows are mutated in place under an optimistic-concurrency
// check on Instance.Version; step instance rows are append-only.
type AuditStore interface {
	// SaveSaga inserts a new saga instance. Returns ErrDuplicateSaga if the
	// id already exists.
	SaveSaga(ctx context.Context, instance *Instance) error

	// UpdateSaga persists a mutated instance if and only if the stored row
	// still carries instance.Version (compare-and-swap). On success the
	// store bumps instance.Version and refreshes instance.UpdatedAt; on a
	// lost race it returns ErrVersionConflict and leaves the row unchanged.
	UpdateSaga(ctx context.Context, instance *Instance) error

	// GetSaga retrieves a saga instance by id, or ErrSagaNotFound.
	GetSaga(ctx context.Context, sagaID string) (*Instance, error)

	// ListSagas returns all saga instances ordered by creation time.
	ListSagas(ctx context.Context) ([]*Instance, error)

	// AppendStep appends a new step instance row.
	AppendStep(ctx context.Context, step *StepInstance) error

	// UpdateStep rewrites the step row identified by step.ID, or returns
	// ErrStepNotFound.
	UpdateStep(ctx context.Context, step *StepInstance) error

	// GetSteps returns all step rows of a saga in append order.
	GetSteps(ctx context.Context, sagaID string) ([]*StepInstance, error)

	// Close releases the store's resources.
	Close() error
}

// StateManager owns the lifecycle contract for saga and step records. It is
// the only component that writes to the audit store, and it enforces
// state-machine legality plus idempotent step transitions so that duplicate
// event delivery never corrupts the trail.
type StateManager interface {
	// StartSaga creates a new instance in STARTED with step index 0.
	// Returns a validation error if sagaType is not registered.
	StartSaga(ctx context.Context, sagaType string, payload json.RawMessage) (*Instance, error)

	// MarkInProgress confirms the first dispatch of a STARTED saga. Event
	// handling may run concurrently with the caller, so a saga that already
	// progressed past STARTED (or even finished) is left untouched.
	MarkInProgress(ctx context.Context, sagaID string) error

	// AdvanceSaga moves the current step index forward. The index is
	// monotonically non-decreasing while the saga executes forward steps;
	// anything else is an illegal state. A non-nil payload replaces the
	// saga's business payload in the same write, so participant enrichment
	// is persisted atomically with the advance.
	AdvanceSaga(ctx context.Context, sagaID string, nextIndex int, payload json.RawMessage) error

	// BeginCompensation moves a non-terminal saga to COMPENSATING and points
	// the step index at the first step to undo.
	BeginCompensation(ctx context.Context, sagaID string, fromIndex int) error

	// SetCompensationIndex moves the unwind cursor down to the next step to
	// undo. Only legal while COMPENSATING.
	SetCompensationIndex(ctx context.Context, sagaID string, index int) error

	// CompleteSaga moves a STARTED or IN_PROGRESS saga to COMPLETED.
	CompleteSaga(ctx context.Context, sagaID string) error

	// CompleteCompensation moves a COMPENSATING saga to COMPENSATED.
	CompleteCompensation(ctx context.Context, sagaID string) error

	// FailSaga moves any non-terminal saga to FAILED. Used both for
	// compensation exhaustion and operator force-failure.
	FailSaga(ctx context.Context, sagaID string) error

	// StartStep appends a STARTED step row. Returns an illegal state error
	// if another STARTED row for the same (sagaID, stepName) is outstanding.
	StartStep(ctx context.Context, sagaID, stepName string, payload json.RawMessage) (*StepInstance, error)

	// CompleteStep transitions the most recent STARTED row for the step to
	// COMPLETED. Replaying against an already terminal row is a no-op.
	CompleteStep(ctx context.Context, sagaID, stepName string, payload json.RawMessage) error

	// FailStep transitions the most recent STARTED row for the step to
	// FAILED. Replaying against an already terminal row is a no-op.
	FailStep(ctx context.Context, sagaID, stepName, errorMessage string) error

	// CompensateStep transitions the most recent COMPLETED row for the step
	// to COMPENSATED. Replays are no-ops.
	CompensateStep(ctx context.Context, sagaID, stepName string) error

	// FailCompensation marks the most recent COMPLETED row for the step as
	// FAILED, recording why its compensation could not run to completion.
	FailCompensation(ctx context.Context, sagaID, stepName, errorMessage string) error

	// GetAllSagaInstances returns every saga instance. Read-only.
	GetAllSagaInstances(ctx context.Context) ([]*Instance, error)

	// GetSagaInstanceByID returns one instance together with its full step
	// history. Read-only.
	GetSagaInstanceByID(ctx context.Context, sagaID string) (*Instance, []*StepInstance, error)
}

// ParticipantGateway sends a command to a participant service. It never
// blocks waiting for the participant's reply: outcome events arrive
// asynchronously through the dispatcher.
type ParticipantGateway interface {
	// Send delivers the command to the participant addressed by
	// cmd.Destination. A transport failure is reported as a delivery error
	// and triggers the orchestrator's retry policy.
	Send(ctx context.Context, cmd *Command) error

	// Close releases transport resources.
	Close() error
}

// EventSink receives inbound participant events. The dispatcher implements
// this so transports can hand events over without knowing about sagas.
type EventSink interface {
	Dispatch(ctx context.Context, event *Event) error
}

// EventDedup remembers event ids that were already processed so replays from
// the at-least-once transport can be dropped before they reach a saga.
type EventDedup interface {
	// Seen atomically records eventID and reports whether it had been
	// recorded before.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Close releases the dedup store's resources.
	Close() error
}

// RetryPolicy defines the strategy for retrying failed command dispatches.
type RetryPolicy interface {
	// ShouldRetry determines if a dispatch should be retried based on the
	// error and the number of attempts already made.
	ShouldRetry(err error, attempt int) bool

	// Delay returns how long to wait before the given attempt.
	Delay(attempt int) time.Duration

	// MaxAttempts returns the attempt ceiling (including the first attempt).
	MaxAttempts() int
}
