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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankingRegistryContainsBothSagas(t *testing.T) {
	registry, err := NewBankingRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{SagaTypePaymentProcessing, SagaTypeUserOnboarding}, registry.Types())
}

func TestUserOnboardingDefinition(t *testing.T) {
	def := NewUserOnboardingDefinition()
	require.NoError(t, def.Validate())
	require.Equal(t, 3, def.StepCount())

	createUser, err := def.StepAt(0)
	require.NoError(t, err)
	assert.True(t, createUser.Compensable())
	assert.Equal(t, DestinationUserService, createUser.Destination)

	openAccount, err := def.StepAt(1)
	require.NoError(t, err)
	assert.True(t, openAccount.Compensable())
	assert.Equal(t, "CloseAccount", openAccount.CompensationType)

	notify, err := def.StepAt(2)
	require.NoError(t, err)
	assert.False(t, notify.Compensable())
	assert.Equal(t, DestinationNotificationService, notify.Destination)
}

func TestUserOnboardingBuilders(t *testing.T) {
	def := NewUserOnboardingDefinition()
	payload, err := json.Marshal(OnboardingRequest{
		UserID: "u-1",
		Name:   "Ada",
		Email:  "ada@example.com",
	})
	require.NoError(t, err)

	createUser, err := def.StepAt(0)
	require.NoError(t, err)

	forward, err := createUser.BuildCommand("saga-1", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u-1","name":"Ada","email":"ada@example.com"}`, string(forward))

	undo, err := createUser.BuildCompensation("saga-1", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_id":"u-1"}`, string(undo))
}

func TestPaymentProcessingDefinition(t *testing.T) {
	def := NewPaymentProcessingDefinition()
	require.NoError(t, def.Validate())
	require.Equal(t, 3, def.StepCount())

	debit, err := def.StepAt(0)
	require.NoError(t, err)
	assert.Equal(t, "ReverseDebit", debit.CompensationType)

	credit, err := def.StepAt(1)
	require.NoError(t, err)
	assert.Equal(t, "ReverseCredit", credit.CompensationType)

	status, err := def.StepAt(2)
	require.NoError(t, err)
	assert.False(t, status.Compensable())
}

func TestPaymentProcessingBuilders(t *testing.T) {
	def := NewPaymentProcessingDefinition()
	payload, err := json.Marshal(PaymentRequest{
		PaymentID:            "p-1",
		SourceAccountID:      "acc-a",
		DestinationAccountID: "acc-b",
		Amount:               250,
	})
	require.NoError(t, err)

	debit, err := def.StepAt(0)
	require.NoError(t, err)
	forward, err := debit.BuildCommand("saga-1", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"payment_id":"p-1","account_id":"acc-a","amount":250}`, string(forward))

	credit, err := def.StepAt(1)
	require.NoError(t, err)
	forward, err = credit.BuildCommand("saga-1", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"payment_id":"p-1","account_id":"acc-b","amount":250}`, string(forward))

	update, err := def.StepAt(2)
	require.NoError(t, err)
	forward, err = update.BuildCommand("saga-1", payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"payment_id":"p-1","status":"COMPLETED"}`, string(forward))
}

func TestBuildersRejectMalformedPayload(t *testing.T) {
	def := NewPaymentProcessingDefinition()
	debit, err := def.StepAt(0)
	require.NoError(t, err)

	_, err = debit.BuildCommand("saga-1", json.RawMessage(`not json`))
	assert.Error(t, err)
}
