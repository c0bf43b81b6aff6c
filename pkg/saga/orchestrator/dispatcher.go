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

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/logger"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// EventHandler is the downstream of the dispatcher, implemented by the
// orchestrator.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *saga.Event) error
}

// DispatcherConfig configures the event dispatcher.
type DispatcherConfig struct {
	// Handler processes events after dedup and per-saga serialization.
	// Required.
	Handler EventHandler

	// Dedup drops already-seen event ids before they reach a saga. Optional;
	// without it only the state manager's idempotent transitions protect
	// against duplicates.
	Dedup saga.EventDedup

	// MailboxSize is the per-saga queue depth. Defaults to 64.
	MailboxSize int

	// Metrics defaults to NoopMetrics.
	Metrics MetricsCollector

	// Logger defaults to the global logger.
	Logger *zap.Logger
}

// Validate checks the configuration.
func (c *DispatcherConfig) Validate() error {
	if c.Handler == nil {
		return fmt.Errorf("dispatcher: event handler is required")
	}
	return nil
}

func (c *DispatcherConfig) setDefaults() {
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = logger.GetLogger()
	}
}

// mailbox is the per-saga event queue drained by a dedicated goroutine.
type mailbox struct {
	events chan *saga.Event
}

// Dispatcher routes inbound participant events to the orchestrator while
// guaranteeing that events of the same saga are processed strictly one at a
// time, in arrival order. Events of different sagas proceed in parallel.
//
// A goroutine per live saga drains its mailbox; the goroutine exits when the
// mailbox is empty, so idle sagas cost nothing between events.
type Dispatcher struct {
	handler EventHandler
	dedup   saga.EventDedup
	size    int
	metrics MetricsCollector
	logger  *zap.Logger

	mu        sync.Mutex
	mailboxes map[string]*mailbox
	wg        sync.WaitGroup
	closed    bool
}

// NewDispatcher creates a dispatcher from the config.
func NewDispatcher(config *DispatcherConfig) (*Dispatcher, error) {
	if config == nil {
		return nil, fmt.Errorf("dispatcher: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	return &Dispatcher{
		handler:   config.Handler,
		dedup:     config.Dedup,
		size:      config.MailboxSize,
		metrics:   config.Metrics,
		logger:    config.Logger,
		mailboxes: make(map[string]*mailbox),
	}, nil
}

// Dispatch enqueues the event for its saga's mailbox, erroring when the
// mailbox is full. Duplicate event ids are dropped here; orphan events are
// dropped later by the drain loop once the handler has classified them.
func (d *Dispatcher) Dispatch(ctx context.Context, event *saga.Event) error {
	if event == nil {
		return saga.NewValidationError("cannot dispatch nil event")
	}
	if event.EventID == "" || event.SagaID == "" {
		return saga.NewValidationError("event requires event_id and saga_id")
	}

	if d.dedup != nil {
		seen, err := d.dedup.Seen(ctx, event.EventID)
		if err != nil {
			// Treat the cache as unavailable and let the event through; the
			// state manager absorbs the duplicate if it is one.
			d.logger.Warn("event dedup unavailable",
				zap.String("event_id", event.EventID),
				zap.Error(err))
		} else if seen {
			d.metrics.EventDuplicateDropped()
			d.logger.Debug("duplicate event dropped",
				zap.String("saga_id", event.SagaID),
				zap.String("event_id", event.EventID))
			return nil
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("dispatcher is closed")
	}
	box, exists := d.mailboxes[event.SagaID]
	if !exists {
		box = &mailbox{events: make(chan *saga.Event, d.size)}
		d.mailboxes[event.SagaID] = box
		d.wg.Add(1)
		go d.drain(event.SagaID, box)
	}

	// Enqueued under the lock so the drain goroutine cannot retire the
	// mailbox between lookup and send.
	select {
	case box.events <- event:
		return nil
	default:
		return fmt.Errorf("mailbox for saga %s is full", event.SagaID)
	}
}

// drain processes one saga's events in order until the mailbox runs dry,
// then retires the mailbox.
func (d *Dispatcher) drain(sagaID string, box *mailbox) {
	defer d.wg.Done()

	for {
		select {
		case event := <-box.events:
			d.handleOne(event)
		default:
			// Retire the mailbox only while holding the lock, so a concurrent
			// Dispatch either finds it or creates a fresh one.
			d.mu.Lock()
			select {
			case event := <-box.events:
				d.mu.Unlock()
				d.handleOne(event)
			default:
				delete(d.mailboxes, sagaID)
				d.mu.Unlock()
				return
			}
		}
	}
}

func (d *Dispatcher) handleOne(event *saga.Event) {
	err := d.handler.HandleEvent(context.Background(), event)
	if err == nil {
		return
	}
	if saga.IsOrphanEvent(err) {
		d.metrics.OrphanEventDropped()
		d.logger.Warn("orphan event dropped",
			zap.String("saga_id", event.SagaID),
			zap.String("event_id", event.EventID),
			zap.String("step", event.StepName))
		return
	}
	d.logger.Error("event handling failed",
		zap.String("saga_id", event.SagaID),
		zap.String("event_id", event.EventID),
		zap.Error(err))
}

// Close stops accepting events and waits for all mailboxes to drain.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

var _ saga.EventSink = (*Dispatcher)(nil)
