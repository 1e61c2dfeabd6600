/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fhiradapter"

// TransformMetrics holds the transformation and queue counters. The values
// are kept as atomics for cheap snapshots and mirrored to prometheus collectors.
type TransformMetrics struct {
	Outcomes  int64 // Number of produced outcomes
	Declined  int64 // Number of rule attempts declined by the transformer
	Skipped   int64 // Number of rules whose applicability script did not return true
	Failed    int64 // Number of failed rule attempts
	Queued    int64 // Number of queued units
	Absorbed  int64 // Number of notifications absorbed by a pending unit
	Dropped   int64 // Number of stale units dropped
	Processed int64 // Number of processed units

	outcomes   *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	queue      *prometheus.CounterVec
	scriptTime prometheus.Histogram
}

// NewTransformMetrics creates the metrics and registers the collectors with reg when it is not nil.
func NewTransformMetrics(reg prometheus.Registerer) *TransformMetrics {
	m := &TransformMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_outcomes_total",
			Help:      "Produced transformation outcomes by direction and tracker resource type.",
		}, []string{"direction", "resource_type"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_attempts_total",
			Help:      "Rule attempts that did not produce an outcome, by result.",
		}, []string{"result"}),
		queue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_events_total",
			Help:      "Webhook queue events by kind.",
		}, []string{"event"}),
		scriptTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "script_execution_seconds",
			Help:      "Duration of mapping script executions.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.attempts, m.queue, m.scriptTime)
	}
	return m
}

func (m *TransformMetrics) IncrementOutcome(direction, resourceType string) {
	if m == nil {
		return
	}
	atomic.AddInt64(&m.Outcomes, 1)
	m.outcomes.WithLabelValues(direction, resourceType).Inc()
}

func (m *TransformMetrics) IncrementDeclined() {
	if m == nil {
		return
	}
	m.attempt(&m.Declined, "declined")
}

func (m *TransformMetrics) IncrementSkipped() {
	if m == nil {
		return
	}
	m.attempt(&m.Skipped, "skipped")
}

func (m *TransformMetrics) IncrementFailed() {
	if m == nil {
		return
	}
	m.attempt(&m.Failed, "failed")
}

func (m *TransformMetrics) IncrementQueued() {
	if m == nil {
		return
	}
	m.queueEvent(&m.Queued, "queued")
}

func (m *TransformMetrics) IncrementAbsorbed() {
	if m == nil {
		return
	}
	m.queueEvent(&m.Absorbed, "absorbed")
}

func (m *TransformMetrics) IncrementDropped() {
	if m == nil {
		return
	}
	m.queueEvent(&m.Dropped, "dropped")
}

func (m *TransformMetrics) IncrementProcessed() {
	if m == nil {
		return
	}
	m.queueEvent(&m.Processed, "processed")
}

// ObserveScript records the duration of one script execution in seconds.
func (m *TransformMetrics) ObserveScript(seconds float64) {
	if m == nil {
		return
	}
	m.scriptTime.Observe(seconds)
}

func (m *TransformMetrics) attempt(counter *int64, result string) {
	atomic.AddInt64(counter, 1)
	m.attempts.WithLabelValues(result).Inc()
}

func (m *TransformMetrics) queueEvent(counter *int64, event string) {
	atomic.AddInt64(counter, 1)
	m.queue.WithLabelValues(event).Inc()
}

// Get returns a copy of the current counters.
func (m *TransformMetrics) Get() TransformMetrics {
	return TransformMetrics{
		Outcomes:  atomic.LoadInt64(&m.Outcomes),
		Declined:  atomic.LoadInt64(&m.Declined),
		Skipped:   atomic.LoadInt64(&m.Skipped),
		Failed:    atomic.LoadInt64(&m.Failed),
		Queued:    atomic.LoadInt64(&m.Queued),
		Absorbed:  atomic.LoadInt64(&m.Absorbed),
		Dropped:   atomic.LoadInt64(&m.Dropped),
		Processed: atomic.LoadInt64(&m.Processed),
	}
}
