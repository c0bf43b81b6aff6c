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

// Package messaging provides the participant gateways: an in-process gateway
// for development and tests, and a Kafka gateway for production, plus the
// Kafka consumer that feeds participant events back into the dispatcher.
package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// ParticipantHandler simulates a participant service: it receives a command
// and returns the event the participant would publish, or nil to swallow the
// command (useful for testing stuck sagas).
type ParticipantHandler func(ctx context.Context, cmd *saga.Command) *saga.Event

// InProcGateway is a saga.ParticipantGateway that invokes registered
// participant handlers directly and feeds their events into an EventSink on
// a separate goroutine, preserving the asynchronous shape of a real broker.
type InProcGateway struct {
	mu       sync.RWMutex
	handlers map[string]ParticipantHandler
	sink     saga.EventSink
	wg       sync.WaitGroup
	closed   bool
	logger   *zap.Logger
}

// NewInProcGateway creates a gateway delivering participant events to sink.
func NewInProcGateway(sink saga.EventSink) *InProcGateway {
	return &InProcGateway{
		handlers: make(map[string]ParticipantHandler),
		sink:     sink,
		logger:   logger.GetLogger(),
	}
}

// Register installs the handler for a participant destination, replacing any
// previous handler for the same destination.
func (g *InProcGateway) Register(destination string, handler ParticipantHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[destination] = handler
}

// Send routes the command to the registered handler. An unknown destination
// is a delivery error, mirroring a broker rejecting an unroutable topic.
func (g *InProcGateway) Send(ctx context.Context, cmd *saga.Command) error {
	g.mu.RLock()
	handler, exists := g.handlers[cmd.Destination]
	closed := g.closed
	g.mu.RUnlock()

	if closed {
		return saga.NewDeliveryError(nil, "gateway is closed")
	}
	if !exists {
		return saga.NewDeliveryError(nil, "no participant registered for destination %q", cmd.Destination)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		event := handler(ctx, cmd)
		if event == nil {
			return
		}
		if err := g.sink.Dispatch(context.Background(), event); err != nil {
			g.logger.Error("in-proc gateway failed to deliver participant event",
				zap.String("saga_id", event.SagaID),
				zap.String("event_id", event.EventID),
				zap.Error(err))
		}
	}()
	return nil
}

// Close waits for in-flight handler goroutines to drain.
func (g *InProcGateway) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.wg.Wait()
	return nil
}

var _ saga.ParticipantGateway = (*InProcGateway)(nil)
