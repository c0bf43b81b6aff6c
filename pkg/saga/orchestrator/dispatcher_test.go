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

package orchestrator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/orchestrator"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state/storage"
)

// recordingHandler records handled events, optionally simulating work and
// per-event errors.
type recordingHandler struct {
	mu      sync.Mutex
	handled []*saga.Event
	delay   time.Duration
	errFor  map[string]error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{errFor: make(map[string]error)}
}

func (h *recordingHandler) HandleEvent(ctx context.Context, event *saga.Event) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.errFor[event.EventID]
}

func (h *recordingHandler) all() []*saga.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*saga.Event(nil), h.handled...)
}

func newTestDispatcher(t *testing.T, handler orchestrator.EventHandler, dedup saga.EventDedup) *orchestrator.Dispatcher {
	t.Helper()
	d, err := orchestrator.NewDispatcher(&orchestrator.DispatcherConfig{
		Handler: handler,
		Dedup:   dedup,
	})
	require.NoError(t, err)
	return d
}

func TestDispatcherConfigValidation(t *testing.T) {
	_, err := orchestrator.NewDispatcher(nil)
	assert.Error(t, err)

	_, err = orchestrator.NewDispatcher(&orchestrator.DispatcherConfig{})
	assert.Error(t, err)
}

func TestDispatcherRejectsInvalidEvents(t *testing.T) {
	d := newTestDispatcher(t, newRecordingHandler(), nil)
	defer d.Close()

	err := d.Dispatch(context.Background(), nil)
	assert.True(t, saga.IsValidation(err))

	err = d.Dispatch(context.Background(), &saga.Event{EventID: "e1"})
	assert.True(t, saga.IsValidation(err))

	err = d.Dispatch(context.Background(), &saga.Event{SagaID: "s1"})
	assert.True(t, saga.IsValidation(err))
}

func TestDispatcherPerSagaOrdering(t *testing.T) {
	handler := newRecordingHandler()
	handler.delay = time.Millisecond
	d := newTestDispatcher(t, handler, nil)

	const perSaga = 20
	ctx := context.Background()
	for i := 0; i < perSaga; i++ {
		for _, sagaID := range []string{"saga-a", "saga-b"} {
			require.NoError(t, d.Dispatch(ctx, &saga.Event{
				EventID:  fmt.Sprintf("%s-%d", sagaID, i),
				SagaID:   sagaID,
				StepName: fmt.Sprintf("step-%d", i),
			}))
		}
	}
	require.NoError(t, d.Close())

	// Within one saga, events arrive at the handler in dispatch order.
	seen := map[string]int{"saga-a": 0, "saga-b": 0}
	for _, event := range handler.all() {
		expected := fmt.Sprintf("%s-%d", event.SagaID, seen[event.SagaID])
		assert.Equal(t, expected, event.EventID)
		seen[event.SagaID]++
	}
	assert.Equal(t, perSaga, seen["saga-a"])
	assert.Equal(t, perSaga, seen["saga-b"])
}

func TestDispatcherDropsDuplicateEventIDs(t *testing.T) {
	handler := newRecordingHandler()
	d := newTestDispatcher(t, handler, storage.NewMemoryDedup(time.Hour))

	ctx := context.Background()
	event := &saga.Event{EventID: "event-1", SagaID: "saga-1"}
	require.NoError(t, d.Dispatch(ctx, event))
	require.NoError(t, d.Dispatch(ctx, event))
	require.NoError(t, d.Close())

	assert.Len(t, handler.all(), 1)
}

func TestDispatcherDropsOrphanErrorsSilently(t *testing.T) {
	handler := newRecordingHandler()
	handler.errFor["event-1"] = saga.NewOrphanEventError("saga-1", "event-1")
	d := newTestDispatcher(t, handler, nil)

	// An orphan classification is logged and dropped, not surfaced.
	require.NoError(t, d.Dispatch(context.Background(), &saga.Event{EventID: "event-1", SagaID: "saga-1"}))
	require.NoError(t, d.Close())
	assert.Len(t, handler.all(), 1)
}

func TestDispatcherClosedRejectsDispatch(t *testing.T) {
	d := newTestDispatcher(t, newRecordingHandler(), nil)
	require.NoError(t, d.Close())

	err := d.Dispatch(context.Background(), &saga.Event{EventID: "event-1", SagaID: "saga-1"})
	assert.Error(t, err)
}

func TestDispatcherConcurrentSagasProgressIndependently(t *testing.T) {
	handler := newRecordingHandler()
	d := newTestDispatcher(t, handler, nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sagaID := fmt.Sprintf("saga-%d", n)
			for j := 0; j < 10; j++ {
				_ = d.Dispatch(ctx, &saga.Event{
					EventID: fmt.Sprintf("%s-%d", sagaID, j),
					SagaID:  sagaID,
				})
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, d.Close())

	assert.Len(t, handler.all(), 100)
}
