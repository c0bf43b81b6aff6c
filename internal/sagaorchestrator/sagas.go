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

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// Saga type names exposed through the HTTP API.
const (
	SagaTypeUserOnboarding    = "user-onboarding"
	SagaTypePaymentProcessing = "payment-processing"
)

// Participant service destinations.
const (
	DestinationUserService         = "user-service"
	DestinationAccountService      = "account-service"
	DestinationPaymentService      = "payment-service"
	DestinationNotificationService = "notification-service"
)

// decodePayload is a generic typed front for the opaque saga payload.
func decodePayload[T any](payload json.RawMessage) (*T, error) {
	var req T
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, saga.NewValidationError("decode saga payload: %v", err)
	}
	return &req, nil
}

// NewUserOnboardingDefinition builds the user-onboarding saga:
//
//	create-user                -> user-service         (undo: delete-user)
//	open-account               -> account-service      (undo: close-account)
//	send-welcome-notification  -> notification-service (non-reversible)
//
// A notification that already went out cannot be recalled, so the last step
// carries no compensation and is skipped during unwinds.
func NewUserOnboardingDefinition() *saga.Definition {
	return &saga.Definition{
		SagaType: SagaTypeUserOnboarding,
		Steps: []saga.StepDefinition{
			{
				Name:             "create-user",
				Destination:      DestinationUserService,
				CommandType:      "CreateUser",
				CompensationType: "DeleteUser",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[OnboardingRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]string{
						"user_id": req.UserID,
						"name":    req.Name,
						"email":   req.Email,
					})
				},
				BuildCompensation: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[OnboardingRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]string{"user_id": req.UserID})
				},
			},
			{
				Name:             "open-account",
				Destination:      DestinationAccountService,
				CommandType:      "OpenAccount",
				CompensationType: "CloseAccount",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[OnboardingRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]string{"user_id": req.UserID})
				},
				BuildCompensation: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[OnboardingRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]string{"user_id": req.UserID})
				},
			},
			{
				Name:        "send-welcome-notification",
				Destination: DestinationNotificationService,
				CommandType: "SendWelcomeNotification",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[OnboardingRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]string{
						"user_id": req.UserID,
						"email":   req.Email,
					})
				},
			},
		},
	}
}

// NewPaymentProcessingDefinition builds the payment-processing saga:
//
//	debit-source-account        -> account-service (undo: reverse-debit)
//	credit-destination-account  -> account-service (undo: reverse-credit)
//	update-payment-status       -> payment-service (non-reversible)
func NewPaymentProcessingDefinition() *saga.Definition {
	return &saga.Definition{
		SagaType: SagaTypePaymentProcessing,
		Steps: []saga.StepDefinition{
			{
				Name:             "debit-source-account",
				Destination:      DestinationAccountService,
				CommandType:      "DebitAccount",
				CompensationType: "ReverseDebit",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[PaymentRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]interface{}{
						"payment_id": req.PaymentID,
						"account_id": req.SourceAccountID,
						"amount":     req.Amount,
					})
				},
				BuildCompensation: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[PaymentRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]interface{}{
						"payment_id": req.PaymentID,
						"account_id": req.SourceAccountID,
						"amount":     req.Amount,
					})
				},
			},
			{
				Name:             "credit-destination-account",
				Destination:      DestinationAccountService,
				CommandType:      "CreditAccount",
				CompensationType: "ReverseCredit",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[PaymentRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]interface{}{
						"payment_id": req.PaymentID,
						"account_id": req.DestinationAccountID,
						"amount":     req.Amount,
					})
				},
				BuildCompensation: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[PaymentRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]interface{}{
						"payment_id": req.PaymentID,
						"account_id": req.DestinationAccountID,
						"amount":     req.Amount,
					})
				},
			},
			{
				Name:        "update-payment-status",
				Destination: DestinationPaymentService,
				CommandType: "UpdatePaymentStatus",
				BuildCommand: func(sagaID string, payload json.RawMessage) (json.RawMessage, error) {
					req, err := decodePayload[PaymentRequest](payload)
					if err != nil {
						return nil, err
					}
					return json.Marshal(map[string]interface{}{
						"payment_id": req.PaymentID,
						"status":     PaymentStatusCompleted,
					})
				},
			},
		},
	}
}

// NewBankingRegistry returns a registry populated with the banking sagas.
func NewBankingRegistry() (*saga.Registry, error) {
	registry := saga.NewRegistry()
	if err := registry.Register(NewUserOnboardingDefinition()); err != nil {
		return nil, err
	}
	if err := registry.Register(NewPaymentProcessingDefinition()); err != nil {
		return nil, err
	}
	return registry, nil
}
