// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbtrace

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

type metrics struct {
	TotalQueries  m.Counter
	TotalErrors   m.Counter
	QueryDuration m.Histogram
}

func newMetrics() metrics {
	subsystem := "dbtrace"

	return metrics{
		TotalQueries: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_queries",
			Help:      "Total traced database queries.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_errors",
			Help:      "Total failed database queries.",
		}),
		QueryDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "query_duration_seconds",
			Help:      "Histogram of traced query durations.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (s *Service) Metrics() []m.Collector {
	return m.PrometheusCollectorsFromFields(s.metrics)
}
