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

// Package monitoring exposes the orchestrator's Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/orchestrator"
)

// PrometheusMetrics implements orchestrator.MetricsCollector with Prometheus
// counters.
type PrometheusMetrics struct {
	sagasStarted       *prometheus.CounterVec
	sagasFinished      *prometheus.CounterVec
	commandsDispatched *prometheus.CounterVec
	dispatchRetries    *prometheus.CounterVec
	eventsProcessed    *prometheus.CounterVec
	orphanEvents       prometheus.Counter
	duplicateEvents    prometheus.Counter
}

// NewPrometheusMetrics creates the collectors and registers them with the
// given registerer. Pass prometheus.DefaultRegisterer for the process-wide
// registry.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		sagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "instances_started_total",
			Help:      "Saga instances created, by saga type.",
		}, []string{"saga_type"}),
		sagasFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "instances_finished_total",
			Help:      "Saga instances that reached a terminal status, by saga type and status.",
		}, []string{"saga_type", "status"}),
		commandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "commands_dispatched_total",
			Help:      "Commands accepted by the participant gateway, by destination and type.",
		}, []string{"destination", "command_type"}),
		dispatchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "command_dispatch_retries_total",
			Help:      "Failed dispatch attempts that were retried, by destination.",
		}, []string{"destination"}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "events_processed_total",
			Help:      "Participant events correlated to a saga, by saga type.",
		}, []string{"saga_type"}),
		orphanEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "orphan_events_dropped_total",
			Help:      "Inbound events that matched no live saga step.",
		}),
		duplicateEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "saga",
			Name:      "duplicate_events_dropped_total",
			Help:      "Inbound events absorbed by the event-id dedup cache.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.sagasStarted, m.sagasFinished, m.commandsDispatched,
		m.dispatchRetries, m.eventsProcessed, m.orphanEvents, m.duplicateEvents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SagaStarted increments the started counter for the saga type.
func (m *PrometheusMetrics) SagaStarted(sagaType string) {
	m.sagasStarted.WithLabelValues(sagaType).Inc()
}

// SagaFinished increments the terminal-status counter.
func (m *PrometheusMetrics) SagaFinished(sagaType, status string) {
	m.sagasFinished.WithLabelValues(sagaType, status).Inc()
}

// CommandDispatched increments the dispatch counter.
func (m *PrometheusMetrics) CommandDispatched(destination, commandType string) {
	m.commandsDispatched.WithLabelValues(destination, commandType).Inc()
}

// DispatchRetried increments the retry counter for the destination.
func (m *PrometheusMetrics) DispatchRetried(destination string) {
	m.dispatchRetries.WithLabelValues(destination).Inc()
}

// EventProcessed increments the processed-events counter.
func (m *PrometheusMetrics) EventProcessed(sagaType string) {
	m.eventsProcessed.WithLabelValues(sagaType).Inc()
}

// OrphanEventDropped increments the orphan counter.
func (m *PrometheusMetrics) OrphanEventDropped() {
	m.orphanEvents.Inc()
}

// EventDuplicateDropped increments the duplicate counter.
func (m *PrometheusMetrics) EventDuplicateDropped() {
	m.duplicateEvents.Inc()
}

var _ orchestrator.MetricsCollector = (*PrometheusMetrics)(nil)
