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

// Package orchestrator implements the saga execution engine: it walks saga
// definitions forward step by step, reacts to participant outcome events,
// and unwinds completed steps in reverse order when a step fails.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/retry"
)

// Config holds the orchestrator's collaborators.
type Config struct {
	// StateManager owns all audit-trail writes. Required.
	StateManager saga.StateManager

	// Registry holds the saga definitions. Required.
	Registry *saga.Registry

	// Gateway delivers commands to participants. Required.
	Gateway saga.ParticipantGateway

	// RetryPolicy is the default dispatch retry policy, used when a saga
	// definition does not carry its own. Defaults to 3 attempts with
	// exponential backoff starting at 100ms.
	RetryPolicy saga.RetryPolicy

	// Metrics receives orchestration signals. Defaults to NoopMetrics.
	Metrics MetricsCollector

	// Logger defaults to the global logger.
	Logger *zap.Logger
}

// Validate checks that the required collaborators are present.
func (c *Config) Validate() error {
	if c.StateManager == nil {
		return fmt.Errorf("orchestrator: state manager is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("orchestrator: definition registry is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("orchestrator: participant gateway is required")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.RetryPolicy == nil {
		c.RetryPolicy = retry.NewExponentialBackoff(3, 100*time.Millisecond, 5*time.Second)
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = logger.GetLogger()
	}
}

// Orchestrator drives saga instances through their definitions. It holds no
// saga state of its own: every decision is derived from the audit store via
// the state manager, so a restarted orchestrator picks up exactly where the
// previous process stopped.
//
// The dispatcher serializes HandleEvent per saga id. StartSaga may overlap
// the first events of the saga it created; the state manager's versioned
// writes and no-op absorption of already-progressed transitions keep that
// overlap safe.
type Orchestrator struct {
	sm       saga.StateManager
	registry *saga.Registry
	gateway  saga.ParticipantGateway
	retry    saga.RetryPolicy
	metrics  MetricsCollector
	logger   *zap.Logger
}

// New creates an orchestrator from the config.
func New(config *Config) (*Orchestrator, error) {
	if config == nil {
		return nil, fmt.Errorf("orchestrator: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	return &Orchestrator{
		sm:       config.StateManager,
		registry: config.Registry,
		gateway:  config.Gateway,
		retry:    config.RetryPolicy,
		metrics:  config.Metrics,
		logger:   config.Logger,
	}, nil
}

// StartSaga creates a new saga instance and dispatches its first step. The
// returned instance is the creation snapshot (STARTED); progress from the
// first dispatch onward is visible through the query surface.
func (o *Orchestrator) StartSaga(ctx context.Context, sagaType string, payload json.RawMessage) (*saga.Instance, error) {
	def, ok := o.registry.Get(sagaType)
	if !ok {
		return nil, saga.NewValidationError("unknown saga type %q", sagaType)
	}

	instance, err := o.sm.StartSaga(ctx, sagaType, payload)
	if err != nil {
		return nil, err
	}
	o.metrics.SagaStarted(sagaType)
	snapshot := instance.Clone()

	if err := o.dispatchForward(ctx, instance, def, 0); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// HandleEvent applies one participant outcome event to its saga. Duplicate
// deliveries are absorbed; events that match no live step are reported as
// orphan errors for the dispatcher to log and drop.
func (o *Orchestrator) HandleEvent(ctx context.Context, event *saga.Event) error {
	instance, steps, err := o.sm.GetSagaInstanceByID(ctx, event.SagaID)
	if err != nil {
		if saga.IsSagaNotFound(err) {
			return saga.NewOrphanEventError(event.SagaID, event.EventID)
		}
		return err
	}

	def, ok := o.registry.Get(instance.SagaType)
	if !ok {
		return saga.NewValidationError("saga %s references unknown type %q", instance.ID, instance.SagaType)
	}

	if instance.Status.IsTerminal() {
		// Late event for a finished saga. The trail is closed; drop it.
		return saga.NewOrphanEventError(event.SagaID, event.EventID)
	}

	current, err := def.StepAt(instance.CurrentStepIndex)
	if err != nil {
		return saga.NewIllegalStateError("saga %s: %v", instance.ID, err)
	}
	if event.StepName != current.Name {
		return saga.NewOrphanEventError(event.SagaID, event.EventID)
	}

	row := latestStepByName(steps, current.Name)
	if row == nil {
		return saga.NewOrphanEventError(event.SagaID, event.EventID)
	}

	defer o.metrics.EventProcessed(instance.SagaType)

	if instance.Status == saga.StatusCompensating {
		return o.handleCompensationEvent(ctx, instance, def, row, event)
	}
	return o.handleForwardEvent(ctx, instance, def, row, event)
}

// handleForwardEvent resolves the outcome of a forward step.
func (o *Orchestrator) handleForwardEvent(
	ctx context.Context,
	instance *saga.Instance,
	def *saga.Definition,
	row *saga.StepInstance,
	event *saga.Event,
) error {
	if row.Status.IsTerminal() {
		// The outcome is already recorded; this is a redelivery.
		o.logger.Debug("duplicate forward event ignored",
			zap.String("saga_id", event.SagaID),
			zap.String("event_id", event.EventID),
			zap.String("step", event.StepName))
		return nil
	}

	if !event.Success {
		if err := o.sm.FailStep(ctx, instance.ID, event.StepName, event.ErrorMessage); err != nil {
			return err
		}
		o.logger.Warn("step failed, starting compensation",
			zap.String("saga_id", instance.ID),
			zap.String("step", event.StepName),
			zap.String("error", event.ErrorMessage))
		return o.beginCompensation(ctx, instance.ID, def)
	}

	if err := o.sm.CompleteStep(ctx, instance.ID, event.StepName, event.Payload); err != nil {
		return err
	}

	// Participant enrichment is merged into the business payload and written
	// in the same CAS update as the index advance, so commands built before
	// and after a restart see the same payload.
	merged := mergeEventPayload(instance.Payload, event.Payload)

	next := instance.CurrentStepIndex + 1
	if err := o.sm.AdvanceSaga(ctx, instance.ID, next, merged); err != nil {
		return err
	}
	if next >= def.StepCount() {
		if err := o.sm.CompleteSaga(ctx, instance.ID); err != nil {
			return err
		}
		o.metrics.SagaFinished(instance.SagaType, saga.StatusCompleted.String())
		return nil
	}

	advanced := instance.Clone()
	advanced.CurrentStepIndex = next
	if merged != nil {
		advanced.Payload = merged
	}
	return o.dispatchForward(ctx, advanced, def, next)
}

// mergeEventPayload folds a participant's result payload into the saga's
// business payload: top-level keys from the event overwrite the base, keys the
// event does not mention are preserved. Participants that merely echo the
// command payload therefore cannot erase fields later steps still need.
// Returns nil when the event carries no JSON object, meaning the payload is
// unchanged.
func mergeEventPayload(base, enrichment json.RawMessage) json.RawMessage {
	if len(enrichment) == 0 {
		return nil
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(enrichment, &overlay); err != nil || len(overlay) == 0 {
		return nil
	}

	merged := make(map[string]json.RawMessage, len(overlay))
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			merged = make(map[string]json.RawMessage, len(overlay))
		}
	}
	for key, value := range overlay {
		merged[key] = value
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil
	}
	return out
}

// handleCompensationEvent resolves the outcome of a compensating command. The
// event correlates to the forward step row under the unwind cursor: success
// moves it COMPLETED -> COMPENSATED, failure marks it FAILED and abandons the
// unwind.
func (o *Orchestrator) handleCompensationEvent(
	ctx context.Context,
	instance *saga.Instance,
	def *saga.Definition,
	row *saga.StepInstance,
	event *saga.Event,
) error {
	if row.Status != saga.StepStatusCompleted {
		o.logger.Debug("duplicate compensation event ignored",
			zap.String("saga_id", event.SagaID),
			zap.String("event_id", event.EventID),
			zap.String("step", event.StepName))
		return nil
	}

	if !event.Success {
		compErr := saga.NewCompensationFailedError(event.StepName, fmt.Errorf("%s", event.ErrorMessage))
		if err := o.sm.FailCompensation(ctx, instance.ID, event.StepName, event.ErrorMessage); err != nil {
			return err
		}
		if err := o.sm.FailSaga(ctx, instance.ID); err != nil {
			return err
		}
		o.metrics.SagaFinished(instance.SagaType, saga.StatusFailed.String())
		o.logger.Error("compensation failed, saga abandoned",
			zap.String("saga_id", instance.ID),
			zap.String("step", event.StepName),
			zap.Error(compErr))
		return nil
	}

	if err := o.sm.CompensateStep(ctx, instance.ID, event.StepName); err != nil {
		return err
	}
	return o.continueCompensation(ctx, instance.ID, def, instance.CurrentStepIndex-1)
}

// dispatchForward logs a STARTED step row and sends the step's command. The
// row snapshots the full command so a restarted orchestrator can re-send it
// verbatim, command id included.
func (o *Orchestrator) dispatchForward(ctx context.Context, instance *saga.Instance, def *saga.Definition, index int) error {
	step, err := def.StepAt(index)
	if err != nil {
		return saga.NewIllegalStateError("saga %s: %v", instance.ID, err)
	}

	payload, err := step.BuildCommand(instance.ID, instance.Payload)
	if err != nil {
		return saga.NewValidationError("saga %s: build command for step %q: %v", instance.ID, step.Name, err)
	}

	cmd := &saga.Command{
		CommandID:   uuid.NewString(),
		SagaID:      instance.ID,
		StepName:    step.Name,
		Type:        step.CommandType,
		Destination: step.Destination,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
	snapshot, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command snapshot: %w", err)
	}

	if _, err := o.sm.StartStep(ctx, instance.ID, step.Name, snapshot); err != nil {
		return err
	}

	if err := o.sendWithRetry(ctx, def, cmd); err != nil {
		if failErr := o.sm.FailStep(ctx, instance.ID, step.Name, err.Error()); failErr != nil {
			return failErr
		}
		o.logger.Warn("command dispatch exhausted retries, starting compensation",
			zap.String("saga_id", instance.ID),
			zap.String("step", step.Name),
			zap.Error(err))
		return o.beginCompensation(ctx, instance.ID, def)
	}

	return o.sm.MarkInProgress(ctx, instance.ID)
}

// beginCompensation flips the saga to COMPENSATING and dispatches the first
// compensating command. The unwind walks completed steps in reverse order,
// silently skipping non-reversible ones. With no prior reversible step the
// saga goes straight to FAILED.
func (o *Orchestrator) beginCompensation(ctx context.Context, sagaID string, def *saga.Definition) error {
	instance, steps, err := o.sm.GetSagaInstanceByID(ctx, sagaID)
	if err != nil {
		return err
	}

	from := o.nextCompensableIndex(def, steps, instance.CurrentStepIndex-1)
	if from < 0 {
		if err := o.sm.FailSaga(ctx, sagaID); err != nil {
			return err
		}
		o.metrics.SagaFinished(instance.SagaType, saga.StatusFailed.String())
		return nil
	}

	if err := o.sm.BeginCompensation(ctx, sagaID, from); err != nil {
		return err
	}
	return o.dispatchCompensation(ctx, sagaID, def, from)
}

// continueCompensation moves the unwind cursor to the next reversible
// completed step below fromIndex, or finishes the unwind.
func (o *Orchestrator) continueCompensation(ctx context.Context, sagaID string, def *saga.Definition, fromIndex int) error {
	instance, steps, err := o.sm.GetSagaInstanceByID(ctx, sagaID)
	if err != nil {
		return err
	}

	next := o.nextCompensableIndex(def, steps, fromIndex)
	if next < 0 {
		if err := o.sm.CompleteCompensation(ctx, sagaID); err != nil {
			return err
		}
		o.metrics.SagaFinished(instance.SagaType, saga.StatusCompensated.String())
		return nil
	}

	if err := o.sm.SetCompensationIndex(ctx, sagaID, next); err != nil {
		return err
	}
	return o.dispatchCompensation(ctx, sagaID, def, next)
}

// nextCompensableIndex walks down from the given index to the highest step
// that both completed and has a compensating command. Returns -1 when none
// remains.
func (o *Orchestrator) nextCompensableIndex(def *saga.Definition, steps []*saga.StepInstance, from int) int {
	for i := from; i >= 0; i-- {
		step, err := def.StepAt(i)
		if err != nil {
			return -1
		}
		row := latestStepByName(steps, step.Name)
		if row == nil || row.Status != saga.StepStatusCompleted {
			continue
		}
		if !step.Compensable() {
			o.logger.Debug("skipping non-reversible step during unwind",
				zap.String("step", step.Name))
			continue
		}
		return i
	}
	return -1
}

// dispatchCompensation sends the compensating command for the step at index.
// Compensation reuses the forward step's row for correlation; no new row is
// appended. A dispatch that exhausts its retries abandons the unwind.
func (o *Orchestrator) dispatchCompensation(ctx context.Context, sagaID string, def *saga.Definition, index int) error {
	instance, _, err := o.sm.GetSagaInstanceByID(ctx, sagaID)
	if err != nil {
		return err
	}
	step, err := def.StepAt(index)
	if err != nil {
		return saga.NewIllegalStateError("saga %s: %v", sagaID, err)
	}

	payload, err := step.BuildCompensation(sagaID, instance.Payload)
	if err != nil {
		return saga.NewValidationError("saga %s: build compensation for step %q: %v", sagaID, step.Name, err)
	}

	cmd := &saga.Command{
		CommandID:   uuid.NewString(),
		SagaID:      sagaID,
		StepName:    step.Name,
		Type:        step.CompensationType,
		Destination: step.Destination,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}

	if err := o.sendWithRetry(ctx, def, cmd); err != nil {
		compErr := saga.NewCompensationFailedError(step.Name, err)
		if failErr := o.sm.FailCompensation(ctx, sagaID, step.Name, err.Error()); failErr != nil {
			return failErr
		}
		if failErr := o.sm.FailSaga(ctx, sagaID); failErr != nil {
			return failErr
		}
		o.metrics.SagaFinished(instance.SagaType, saga.StatusFailed.String())
		o.logger.Error("compensation dispatch exhausted retries, saga abandoned",
			zap.String("saga_id", sagaID),
			zap.String("step", step.Name),
			zap.Error(compErr))
		return nil
	}
	return nil
}

// sendWithRetry dispatches the command under the applicable retry policy.
func (o *Orchestrator) sendWithRetry(ctx context.Context, def *saga.Definition, cmd *saga.Command) error {
	policy := o.retry
	if def.RetryPolicy != nil {
		policy = def.RetryPolicy
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if delay := policy.Delay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = o.gateway.Send(ctx, cmd)
		if lastErr == nil {
			o.metrics.CommandDispatched(cmd.Destination, cmd.Type)
			return nil
		}
		if !policy.ShouldRetry(lastErr, attempt) {
			break
		}
		o.metrics.DispatchRetried(cmd.Destination)
		o.logger.Warn("command dispatch failed, retrying",
			zap.String("saga_id", cmd.SagaID),
			zap.String("command_id", cmd.CommandID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	return saga.NewRetryExhaustedError("send "+cmd.Type, policy.MaxAttempts(), lastErr)
}

// ForceFail is the operator entry point for abandoning a stuck saga. The
// instance moves to FAILED regardless of in-flight work; any late events are
// dropped as orphans afterwards.
func (o *Orchestrator) ForceFail(ctx context.Context, sagaID string) error {
	instance, _, err := o.sm.GetSagaInstanceByID(ctx, sagaID)
	if err != nil {
		return err
	}
	if err := o.sm.FailSaga(ctx, sagaID); err != nil {
		return err
	}
	o.metrics.SagaFinished(instance.SagaType, saga.StatusFailed.String())
	o.logger.Warn("saga force-failed by operator", zap.String("saga_id", sagaID))
	return nil
}

// Recover re-drives sagas that were in flight when the previous process
// stopped. Forward sagas with an outstanding STARTED step re-send the exact
// command snapshotted in the step row, so participants can deduplicate on the
// unchanged command id. Compensating sagas re-dispatch the compensation under
// the persisted cursor with a fresh command id, since compensating commands
// are not snapshotted.
func (o *Orchestrator) Recover(ctx context.Context) error {
	instances, err := o.sm.GetAllSagaInstances(ctx)
	if err != nil {
		return err
	}

	for _, instance := range instances {
		if instance.Status.IsTerminal() {
			continue
		}
		if err := o.recoverOne(ctx, instance); err != nil {
			o.logger.Error("saga recovery failed",
				zap.String("saga_id", instance.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) recoverOne(ctx context.Context, instance *saga.Instance) error {
	def, ok := o.registry.Get(instance.SagaType)
	if !ok {
		return saga.NewValidationError("saga %s references unknown type %q", instance.ID, instance.SagaType)
	}

	if instance.Status == saga.StatusCompensating {
		o.logger.Info("resuming compensation after restart",
			zap.String("saga_id", instance.ID),
			zap.Int("cursor", instance.CurrentStepIndex))
		return o.dispatchCompensation(ctx, instance.ID, def, instance.CurrentStepIndex)
	}

	_, steps, err := o.sm.GetSagaInstanceByID(ctx, instance.ID)
	if err != nil {
		return err
	}
	step, err := def.StepAt(instance.CurrentStepIndex)
	if err != nil {
		return saga.NewIllegalStateError("saga %s: %v", instance.ID, err)
	}

	row := latestStepByName(steps, step.Name)
	if row == nil {
		// Crash between creating the saga and logging the first step.
		o.logger.Info("re-dispatching never-started step after restart",
			zap.String("saga_id", instance.ID),
			zap.String("step", step.Name))
		return o.dispatchForward(ctx, instance, def, instance.CurrentStepIndex)
	}

	switch row.Status {
	case saga.StepStatusStarted:
		var cmd saga.Command
		if err := json.Unmarshal(row.PayloadSnapshot, &cmd); err != nil {
			return fmt.Errorf("saga %s: decode command snapshot for step %q: %w", instance.ID, step.Name, err)
		}
		o.logger.Info("re-sending outstanding command after restart",
			zap.String("saga_id", instance.ID),
			zap.String("step", step.Name),
			zap.String("command_id", cmd.CommandID))
		if err := o.sendWithRetry(ctx, def, &cmd); err != nil {
			if failErr := o.sm.FailStep(ctx, instance.ID, step.Name, err.Error()); failErr != nil {
				return failErr
			}
			return o.beginCompensation(ctx, instance.ID, def)
		}
		return o.sm.MarkInProgress(ctx, instance.ID)

	case saga.StepStatusCompleted:
		// Crash between recording the outcome and acting on it.
		next := instance.CurrentStepIndex + 1
		if err := o.sm.AdvanceSaga(ctx, instance.ID, next, nil); err != nil {
			return err
		}
		if next >= def.StepCount() {
			if err := o.sm.CompleteSaga(ctx, instance.ID); err != nil {
				return err
			}
			o.metrics.SagaFinished(instance.SagaType, saga.StatusCompleted.String())
			return nil
		}
		advanced := instance.Clone()
		advanced.CurrentStepIndex = next
		return o.dispatchForward(ctx, advanced, def, next)

	case saga.StepStatusFailed:
		return o.beginCompensation(ctx, instance.ID, def)
	}
	return nil
}

// latestStepByName returns the most recent step row for the given name.
func latestStepByName(steps []*saga.StepInstance, stepName string) *saga.StepInstance {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].StepName == stepName {
			return steps[i]
		}
	}
	return nil
}
