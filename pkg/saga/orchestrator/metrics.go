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

// MetricsCollector receives orchestration signals. The monitoring package
// provides a Prometheus implementation; tests and minimal deployments use
// the no-op collector.
type MetricsCollector interface {
	// SagaStarted is called when a new saga instance is created.
	SagaStarted(sagaType string)

	// SagaFinished is called when a saga reaches a terminal status
	// (COMPLETED, COMPENSATED or FAILED).
	SagaFinished(sagaType, status string)

	// CommandDispatched is called after a command is accepted by the gateway.
	CommandDispatched(destination, commandType string)

	// DispatchRetried is called for every failed dispatch attempt that will
	// be retried.
	DispatchRetried(destination string)

	// EventProcessed is called for every participant event that reached a
	// saga (successfully correlated, replay or not).
	EventProcessed(sagaType string)

	// OrphanEventDropped is called when an inbound event matched no live
	// saga step and was discarded.
	OrphanEventDropped()

	// EventDuplicateDropped is called when the dedup cache absorbed a replay.
	EventDuplicateDropped()
}

// NoopMetrics is a MetricsCollector that discards everything.
type NoopMetrics struct{}

func (NoopMetrics) SagaStarted(string)               {}
func (NoopMetrics) SagaFinished(string, string)      {}
func (NoopMetrics) CommandDispatched(string, string) {}
func (NoopMetrics) DispatchRetried(string)           {}
func (NoopMetrics) EventProcessed(string)            {}
func (NoopMetrics) OrphanEventDropped()              {}
func (NoopMetrics) EventDuplicateDropped()           {}

var _ MetricsCollector = NoopMetrics{}
