// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queuetrace

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

type metrics struct {
	TotalDispatched m.Counter
	TotalErrors     m.Counter
}

func newMetrics() metrics {
	subsystem := "queuetrace"

	return metrics{
		TotalDispatched: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_dispatched",
			Help:      "Total traced task dispatches.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_dispatch_errors",
			Help:      "Total failed task dispatches.",
		}),
	}
}

// Metrics returns the collectors of the dispatcher.
func (d *TracedDispatcher) Metrics() []m.Collector {
	return m.PrometheusCollectorsFromFields(d.metrics)
}

type executorMetrics struct {
	TotalExecuted   m.Counter
	TotalErrors     m.Counter
	TotalRetries    m.Counter
	ExecuteDuration m.Histogram
}

func newExecutorMetrics() executorMetrics {
	subsystem := "queuetrace"

	return executorMetrics{
		TotalExecuted: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_executed",
			Help:      "Total traced task executions.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_execute_errors",
			Help:      "Total failed task executions.",
		}),
		TotalRetries: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_retries",
			Help:      "Total task executions that requested a retry.",
		}),
		ExecuteDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "execute_duration_seconds",
			Help:      "Histogram of task execution durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}
