// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httptrace

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

type metrics struct {
	TotalRequests   m.Counter
	TotalErrors     m.Counter
	RequestDuration m.Histogram
}

func newMetrics() metrics {
	subsystem := "httptrace"

	return metrics{
		TotalRequests: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_requests",
			Help:      "Total traced outbound http requests.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_errors",
			Help:      "Total failed outbound http requests.",
		}),
		RequestDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Histogram of traced request durations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Metrics returns the collectors of the round tripper.
func (rt *roundTripper) Metrics() []m.Collector {
	return m.PrometheusCollectorsFromFields(rt.metrics)
}
