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
	"time"

	"github.com/google/uuid"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/messaging"
)

// insufficientFundsLimit is the balance the simulated account service
// pretends every account holds. Debits above it fail, which gives demos a
// reproducible way to watch a payment saga compensate.
const insufficientFundsLimit = 10_000.0

// RegisterSimulatedParticipants installs in-process stand-ins for the user,
// account, payment and notification services. They acknowledge every command
// with a success event, except debits exceeding the simulated balance. Acks
// carry no payload: they produce nothing, and echoing the command payload
// back would overwrite the saga's business payload with a single step's view
// of it.
func RegisterSimulatedParticipants(gateway *messaging.InProcGateway) {
	ack := func(cmd *saga.Command, success bool, errorMessage string) *saga.Event {
		return &saga.Event{
			EventID:      uuid.NewString(),
			SagaID:       cmd.SagaID,
			StepName:     cmd.StepName,
			Timestamp:    time.Now().UTC(),
			Success:      success,
			ErrorMessage: errorMessage,
		}
	}

	succeed := func(ctx context.Context, cmd *saga.Command) *saga.Event {
		return ack(cmd, true, "")
	}

	gateway.Register(DestinationUserService, succeed)
	gateway.Register(DestinationPaymentService, succeed)
	gateway.Register(DestinationNotificationService, succeed)

	gateway.Register(DestinationAccountService, func(ctx context.Context, cmd *saga.Command) *saga.Event {
		if cmd.Type != "DebitAccount" {
			return ack(cmd, true, "")
		}
		var body struct {
			Amount float64 `json:"amount"`
		}
		if err := json.Unmarshal(cmd.Payload, &body); err != nil {
			return ack(cmd, false, "malformed debit command payload")
		}
		if body.Amount > insufficientFundsLimit {
			return ack(cmd, false, "insufficient funds")
		}
		return ack(cmd, true, "")
	})
}
