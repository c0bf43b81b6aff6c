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

package sagaorchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/messaging"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/orchestrator"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/retry"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state/storage"
)

// recordingGateway keeps a copy of every dispatched command on its way to the
// in-process participants.
type recordingGateway struct {
	inner *messaging.InProcGateway

	mu   sync.Mutex
	sent []*saga.Command
}

func (g *recordingGateway) Send(ctx context.Context, cmd *saga.Command) error {
	g.mu.Lock()
	g.sent = append(g.sent, cmd)
	g.mu.Unlock()
	return g.inner.Send(ctx, cmd)
}

func (g *recordingGateway) Close() error { return g.inner.Close() }

func (g *recordingGateway) byType(commandType string) *saga.Command {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, cmd := range g.sent {
		if cmd.Type == commandType {
			return cmd
		}
	}
	return nil
}

// inprocPipeline is the full in-process engine: simulated participants feed
// events back through the dispatcher into the orchestrator.
type inprocPipeline struct {
	sm         *state.Manager
	orch       *orchestrator.Orchestrator
	gateway    *recordingGateway
	dispatcher *orchestrator.Dispatcher
}

func newInprocPipeline(t *testing.T) *inprocPipeline {
	t.Helper()

	registry, err := NewBankingRegistry()
	require.NoError(t, err)

	sm := state.NewManager(storage.NewMemoryStore(), registry, nil)

	sink := &sinkProxy{}
	inner := messaging.NewInProcGateway(sink)
	RegisterSimulatedParticipants(inner)
	gateway := &recordingGateway{inner: inner}

	orch, err := orchestrator.New(&orchestrator.Config{
		StateManager: sm,
		Registry:     registry,
		Gateway:      gateway,
		RetryPolicy:  retry.None(),
	})
	require.NoError(t, err)

	dispatcher, err := orchestrator.NewDispatcher(&orchestrator.DispatcherConfig{
		Handler: orch,
		Dedup:   storage.NewMemoryDedup(time.Hour),
	})
	require.NoError(t, err)
	sink.bind(dispatcher)

	t.Cleanup(func() {
		_ = gateway.Close()
		_ = dispatcher.Close()
	})
	return &inprocPipeline{sm: sm, orch: orch, gateway: gateway, dispatcher: dispatcher}
}

func (p *inprocPipeline) waitTerminal(t *testing.T, sagaID string) *saga.Instance {
	t.Helper()
	var instance *saga.Instance
	require.Eventually(t, func() bool {
		in, _, err := p.sm.GetSagaInstanceByID(context.Background(), sagaID)
		if err != nil {
			return false
		}
		instance = in
		return in.Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)
	return instance
}

func TestInprocPaymentSagaCompletes(t *testing.T) {
	p := newInprocPipeline(t)

	payload, err := json.Marshal(PaymentRequest{
		PaymentID:            "p-1",
		SourceAccountID:      "acc-a",
		DestinationAccountID: "acc-b",
		Amount:               250,
	})
	require.NoError(t, err)

	started, err := p.orch.StartSaga(context.Background(), SagaTypePaymentProcessing, payload)
	require.NoError(t, err)

	final := p.waitTerminal(t, started.ID)
	assert.Equal(t, saga.StatusCompleted, final.Status)
	assert.Equal(t, 3, final.CurrentStepIndex)

	_, steps, err := p.sm.GetSagaInstanceByID(context.Background(), started.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for _, step := range steps {
		assert.Equal(t, saga.StepStatusCompleted, step.Status)
	}
}

func TestInprocUserOnboardingCompletes(t *testing.T) {
	p := newInprocPipeline(t)

	payload, err := json.Marshal(OnboardingRequest{
		UserID: "u-1",
		Name:   "Ada",
		Email:  "ada@example.com",
	})
	require.NoError(t, err)

	started, err := p.orch.StartSaga(context.Background(), SagaTypeUserOnboarding, payload)
	require.NoError(t, err)

	final := p.waitTerminal(t, started.ID)
	assert.Equal(t, saga.StatusCompleted, final.Status)
}

// Every dispatched command must be built from the full business payload: the
// debit targets the source account, the credit the destination account, even
// though the participants ack in between.
func TestInprocPaymentCommandsTargetCorrectAccounts(t *testing.T) {
	p := newInprocPipeline(t)

	payload, err := json.Marshal(PaymentRequest{
		PaymentID:            "p-3",
		SourceAccountID:      "acc-a",
		DestinationAccountID: "acc-b",
		Amount:               250,
	})
	require.NoError(t, err)

	started, err := p.orch.StartSaga(context.Background(), SagaTypePaymentProcessing, payload)
	require.NoError(t, err)

	final := p.waitTerminal(t, started.ID)
	require.Equal(t, saga.StatusCompleted, final.Status)

	var body struct {
		PaymentID string  `json:"payment_id"`
		AccountID string  `json:"account_id"`
		Amount    float64 `json:"amount"`
		Status    string  `json:"status"`
	}

	debit := p.gateway.byType("DebitAccount")
	require.NotNil(t, debit)
	require.NoError(t, json.Unmarshal(debit.Payload, &body))
	assert.Equal(t, "acc-a", body.AccountID)
	assert.Equal(t, 250.0, body.Amount)

	credit := p.gateway.byType("CreditAccount")
	require.NotNil(t, credit)
	require.NoError(t, json.Unmarshal(credit.Payload, &body))
	assert.Equal(t, "acc-b", body.AccountID, "credit command must target the destination account")
	assert.Equal(t, "p-3", body.PaymentID)
	assert.Equal(t, 250.0, body.Amount)

	update := p.gateway.byType("UpdatePaymentStatus")
	require.NotNil(t, update)
	require.NoError(t, json.Unmarshal(update.Payload, &body))
	assert.Equal(t, PaymentStatusCompleted, body.Status)
}

// The onboarding payload keeps its email through the account step, so the
// welcome notification still knows where to go.
func TestInprocOnboardingKeepsEmailForNotification(t *testing.T) {
	p := newInprocPipeline(t)

	payload, err := json.Marshal(OnboardingRequest{
		UserID: "u-2",
		Name:   "Grace",
		Email:  "grace@example.com",
	})
	require.NoError(t, err)

	started, err := p.orch.StartSaga(context.Background(), SagaTypeUserOnboarding, payload)
	require.NoError(t, err)

	final := p.waitTerminal(t, started.ID)
	require.Equal(t, saga.StatusCompleted, final.Status)

	welcome := p.gateway.byType("SendWelcomeNotification")
	require.NotNil(t, welcome)
	assert.JSONEq(t, `{"user_id":"u-2","email":"grace@example.com"}`, string(welcome.Payload))
}

func TestInprocInsufficientFundsFailsSaga(t *testing.T) {
	p := newInprocPipeline(t)

	payload, err := json.Marshal(PaymentRequest{
		PaymentID:            "p-2",
		SourceAccountID:      "acc-a",
		DestinationAccountID: "acc-b",
		Amount:               insufficientFundsLimit + 1,
	})
	require.NoError(t, err)

	started, err := p.orch.StartSaga(context.Background(), SagaTypePaymentProcessing, payload)
	require.NoError(t, err)

	// The debit is the first step, so there is nothing to compensate.
	final := p.waitTerminal(t, started.ID)
	assert.Equal(t, saga.StatusFailed, final.Status)

	_, steps, err := p.sm.GetSagaInstanceByID(context.Background(), started.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, saga.StepStatusFailed, steps[0].Status)
	assert.Equal(t, "insufficient funds", steps[0].ErrorMessage)
}
