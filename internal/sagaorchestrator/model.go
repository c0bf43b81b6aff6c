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

// Package sagaorchestrator wires the saga engine into the banking service:
// the saga definitions, the HTTP API, configuration and process lifecycle.
package sagaorchestrator

// OnboardingRequest is the business payload of a user-onboarding saga. The
// engine treats it as opaque JSON; the step builders map it to command
// payloads for the user, account and notification services.
type OnboardingRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
}

// PaymentRequest is the business payload of a payment-processing saga.
type PaymentRequest struct {
	PaymentID            string  `json:"payment_id" binding:"required"`
	SourceAccountID      string  `json:"source_account_id" binding:"required"`
	DestinationAccountID string  `json:"destination_account_id" binding:"required,nefield=SourceAccountID"`
	Amount               float64 `json:"amount" binding:"required,gt=0"`
}

// Payment statuses recorded by the payment service once a payment saga
// resolves.
const (
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)
