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

package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// casAttempts bounds the optimistic-concurrency retry loop. Conflicts only
// happen when two writers race on the same saga id, which the dispatcher
// already serializes, so a handful of attempts is plenty.
const casAttempts = 5

// errNoop is returned by a mutation closure to signal that the transition is
// an idempotent replay: the saga row must be left untouched.
var errNoop = errors.New("no-op transition")

// Manager implements saga.StateManager on top of a saga.AuditStore.
//
// All saga-row writes go through a compare-and-swap loop on Instance.Version
// so that two concurrent event-handling attempts for the same saga can never
// interleave their writes. Step rows are append-only; terminal step
// transitions are idempotent to absorb duplicate event delivery.
type Manager struct {
	store    saga.AuditStore
	registry *saga.Registry
	logger   *zap.Logger
}

// NewManager creates a state manager. The registry is consulted to reject
// unknown saga types at creation time.
func NewManager(store saga.AuditStore, registry *saga.Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{store: store, registry: registry, logger: log}
}

// StartSaga creates a new instance in STARTED with step index 0.
func (m *Manager) StartSaga(ctx context.Context, sagaType string, payload json.RawMessage) (*saga.Instance, error) {
	if _, ok := m.registry.Get(sagaType); !ok {
		return nil, saga.NewValidationError("unknown saga type %q", sagaType)
	}

	now := time.Now().UTC()
	instance := &saga.Instance{
		ID:               uuid.NewString(),
		SagaType:         sagaType,
		Status:           saga.StatusStarted,
		CurrentStepIndex: 0,
		Payload:          payload,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}

	if err := m.store.SaveSaga(ctx, instance); err != nil {
		return nil, saga.NewStorageError("SaveSaga", err)
	}

	m.logger.Info("saga started",
		zap.String("saga_id", instance.ID),
		zap.String("saga_type", sagaType))
	return instance, nil
}

// mutateSaga loads the saga, applies the mutation and writes it back under
// the optimistic version check, retrying on lost races.
func (m *Manager) mutateSaga(ctx context.Context, sagaID string, mutate func(*saga.Instance) error) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		instance, err := m.store.GetSaga(ctx, sagaID)
		if err != nil {
			if errors.Is(err, ErrSagaNotFound) {
				return saga.NewSagaNotFoundError(sagaID)
			}
			return saga.NewStorageError("GetSaga", err)
		}

		if err := mutate(instance); err != nil {
			if errors.Is(err, errNoop) {
				return nil
			}
			return err
		}

		err = m.store.UpdateSaga(ctx, instance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return saga.NewStorageError("UpdateSaga", err)
		}
		m.logger.Debug("saga version conflict, retrying",
			zap.String("saga_id", sagaID),
			zap.Int("attempt", attempt+1))
	}
	return saga.NewStorageError("UpdateSaga", ErrVersionConflict)
}

// MarkInProgress confirms the first dispatch of a STARTED saga. The first
// participant event can race the caller and move the saga further along (or
// finish it) before the confirmation lands, so any status other than STARTED
// is left untouched.
func (m *Manager) MarkInProgress(ctx context.Context, sagaID string) error {
	return m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status != saga.StatusStarted {
			return errNoop
		}
		in.Status = saga.StatusInProgress
		return nil
	})
}

// AdvanceSaga moves the current step index forward while the saga executes
// forward steps. The index is monotonically non-decreasing. A non-nil payload
// replaces the saga's business payload under the same version check, so
// participant enrichment survives a restart.
func (m *Manager) AdvanceSaga(ctx context.Context, sagaID string, nextIndex int, payload json.RawMessage) error {
	return m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if !in.Status.IsForward() {
			return saga.NewIllegalStateError("saga %s: cannot advance while %s", sagaID, in.Status)
		}
		if nextIndex < in.CurrentStepIndex {
			return saga.NewIllegalStateError("saga %s: step index must not decrease (%d -> %d)",
				sagaID, in.CurrentStepIndex, nextIndex)
		}
		if nextIndex == in.CurrentStepIndex && payload == nil {
			return errNoop
		}
		if payload != nil {
			in.Payload = payload
		}
		in.CurrentStepIndex = nextIndex
		in.Status = saga.StatusInProgress
		return nil
	})
}

// BeginCompensation moves a non-terminal saga to COMPENSATING and points the
// unwind cursor at the first step to undo.
func (m *Manager) BeginCompensation(ctx context.Context, sagaID string, fromIndex int) error {
	return m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status.IsTerminal() {
			return saga.NewIllegalStateError("saga %s: cannot compensate a %s saga", sagaID, in.Status)
		}
		in.Status = saga.StatusCompensating
		in.CurrentStepIndex = fromIndex
		return nil
	})
}

// SetCompensationIndex moves the unwind cursor down to the next step to undo.
func (m *Manager) SetCompensationIndex(ctx context.Context, sagaID string, index int) error {
	return m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status != saga.StatusCompensating {
			return saga.NewIllegalStateError("saga %s: cannot move compensation cursor while %s", sagaID, in.Status)
		}
		if index > in.CurrentStepIndex {
			return saga.NewIllegalStateError("saga %s: compensation cursor must not increase (%d -> %d)",
				sagaID, in.CurrentStepIndex, index)
		}
		in.CurrentStepIndex = index
		return nil
	})
}

// CompleteSaga moves a STARTED or IN_PROGRESS saga to COMPLETED.
func (m *Manager) CompleteSaga(ctx context.Context, sagaID string) error {
	err := m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status == saga.StatusCompleted {
			return errNoop
		}
		if !in.Status.IsForward() {
			return saga.NewIllegalStateError("saga %s: cannot complete from %s", sagaID, in.Status)
		}
		in.Status = saga.StatusCompleted
		return nil
	})
	if err == nil {
		m.logger.Info("saga completed", zap.String("saga_id", sagaID))
	}
	return err
}

// CompleteCompensation moves a COMPENSATING saga to COMPENSATED.
func (m *Manager) CompleteCompensation(ctx context.Context, sagaID string) error {
	err := m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status == saga.StatusCompensated {
			return errNoop
		}
		if in.Status != saga.StatusCompensating {
			return saga.NewIllegalStateError("saga %s: cannot finish compensation from %s", sagaID, in.Status)
		}
		in.Status = saga.StatusCompensated
		return nil
	})
	if err == nil {
		m.logger.Info("saga compensated", zap.String("saga_id", sagaID))
	}
	return err
}

// FailSaga moves any non-terminal saga to FAILED. This is also the operator
// force-failure entry point, so in-flight compensation is simply abandoned.
func (m *Manager) FailSaga(ctx context.Context, sagaID string) error {
	err := m.mutateSaga(ctx, sagaID, func(in *saga.Instance) error {
		if in.Status == saga.StatusFailed {
			return errNoop
		}
		if in.Status.IsTerminal() {
			return saga.NewIllegalStateError("saga %s: cannot fail a %s saga", sagaID, in.Status)
		}
		in.Status = saga.StatusFailed
		return nil
	})
	if err == nil {
		m.logger.Warn("saga failed", zap.String("saga_id", sagaID))
	}
	return err
}

// latestStepByName returns the most recent step row for the given name, or
// nil when the step was never attempted. Rows are in append order.
func latestStepByName(steps []*saga.StepInstance, stepName string) *saga.StepInstance {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].StepName == stepName {
			return steps[i]
		}
	}
	return nil
}

// StartStep appends a STARTED step row after checking that no other STARTED
// row for the same (sagaID, stepName) is outstanding.
func (m *Manager) StartStep(ctx context.Context, sagaID, stepName string, payload json.RawMessage) (*saga.StepInstance, error) {
	if _, err := m.store.GetSaga(ctx, sagaID); err != nil {
		if errors.Is(err, ErrSagaNotFound) {
			return nil, saga.NewSagaNotFoundError(sagaID)
		}
		return nil, saga.NewStorageError("GetSaga", err)
	}

	steps, err := m.store.GetSteps(ctx, sagaID)
	if err != nil {
		return nil, saga.NewStorageError("GetSteps", err)
	}
	if last := latestStepByName(steps, stepName); last != nil && last.Status == saga.StepStatusStarted {
		return nil, saga.NewIllegalStateError("saga %s: step %q already has an outstanding attempt", sagaID, stepName)
	}

	step := &saga.StepInstance{
		ID:              uuid.NewString(),
		SagaInstanceID:  sagaID,
		StepName:        stepName,
		Status:          saga.StepStatusStarted,
		PayloadSnapshot: payload,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.AppendStep(ctx, step); err != nil {
		return nil, saga.NewStorageError("AppendStep", err)
	}

	m.logger.Debug("step started",
		zap.String("saga_id", sagaID),
		zap.String("step", stepName))
	return step, nil
}

// transitionStep applies a terminal transition to the most recent row of the
// named step. Replays against an already terminal row are absorbed silently.
func (m *Manager) transitionStep(
	ctx context.Context,
	sagaID, stepName string,
	from, to saga.StepStatus,
	update func(*saga.StepInstance),
) error {
	steps, err := m.store.GetSteps(ctx, sagaID)
	if err != nil {
		return saga.NewStorageError("GetSteps", err)
	}

	step := latestStepByName(steps, stepName)
	if step == nil {
		return saga.NewIllegalStateError("saga %s: no attempt of step %q to transition", sagaID, stepName)
	}
	if step.Status == to {
		m.logger.Debug("duplicate step transition ignored",
			zap.String("saga_id", sagaID),
			zap.String("step", stepName),
			zap.Stringer("status", to))
		return nil
	}
	if step.Status != from {
		if step.Status.IsTerminal() {
			// Late replay of a superseded attempt; the audit trail already
			// records the outcome.
			m.logger.Debug("stale step transition ignored",
				zap.String("saga_id", sagaID),
				zap.String("step", stepName),
				zap.Stringer("have", step.Status),
				zap.Stringer("want", to))
			return nil
		}
		return saga.NewIllegalStateError("saga %s: step %q is %s, cannot move to %s",
			sagaID, stepName, step.Status, to)
	}

	step.Status = to
	if update != nil {
		update(step)
	}
	if err := m.store.UpdateStep(ctx, step); err != nil {
		return saga.NewStorageError("UpdateStep", err)
	}
	return nil
}

// CompleteStep transitions the most recent STARTED row to COMPLETED.
func (m *Manager) CompleteStep(ctx context.Context, sagaID, stepName string, payload json.RawMessage) error {
	return m.transitionStep(ctx, sagaID, stepName, saga.StepStatusStarted, saga.StepStatusCompleted,
		func(step *saga.StepInstance) {
			if payload != nil {
				step.PayloadSnapshot = payload
			}
		})
}

// FailStep transitions the most recent STARTED row to FAILED.
func (m *Manager) FailStep(ctx context.Context, sagaID, stepName, errorMessage string) error {
	return m.transitionStep(ctx, sagaID, stepName, saga.StepStatusStarted, saga.StepStatusFailed,
		func(step *saga.StepInstance) {
			step.ErrorMessage = errorMessage
		})
}

// CompensateStep transitions the most recent COMPLETED row to COMPENSATED.
func (m *Manager) CompensateStep(ctx context.Context, sagaID, stepName string) error {
	return m.transitionStep(ctx, sagaID, stepName, saga.StepStatusCompleted, saga.StepStatusCompensated, nil)
}

// FailCompensation marks the most recent COMPLETED row as FAILED, recording
// why the step could not be undone.
func (m *Manager) FailCompensation(ctx context.Context, sagaID, stepName, errorMessage string) error {
	return m.transitionStep(ctx, sagaID, stepName, saga.StepStatusCompleted, saga.StepStatusFailed,
		func(step *saga.StepInstance) {
			step.ErrorMessage = errorMessage
		})
}

// GetAllSagaInstances returns every saga instance ordered by creation time.
func (m *Manager) GetAllSagaInstances(ctx context.Context) ([]*saga.Instance, error) {
	instances, err := m.store.ListSagas(ctx)
	if err != nil {
		return nil, saga.NewStorageError("ListSagas", err)
	}
	return instances, nil
}

// GetSagaInstanceByID returns one instance together with its step history.
func (m *Manager) GetSagaInstanceByID(ctx context.Context, sagaID string) (*saga.Instance, []*saga.StepInstance, error) {
	instance, err := m.store.GetSaga(ctx, sagaID)
	if err != nil {
		if errors.Is(err, ErrSagaNotFound) {
			return nil, nil, saga.NewSagaNotFoundError(sagaID)
		}
		return nil, nil, saga.NewStorageError("GetSaga", err)
	}
	steps, err := m.store.GetSteps(ctx, sagaID)
	if err != nil {
		return nil, nil, saga.NewStorageError("GetSteps", err)
	}
	return instance, steps, nil
}

var _ saga.StateManager = (*Manager)(nil)
