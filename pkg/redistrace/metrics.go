// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package redistrace

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

type metrics struct {
	TotalCommands   m.Counter
	TotalErrors     m.Counter
	CommandDuration m.Histogram
}

func newMetrics() metrics {
	subsystem := "redistrace"

	return metrics{
		TotalCommands: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_commands",
			Help:      "Total traced redis commands.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_errors",
			Help:      "Total failed redis commands.",
		}),
		CommandDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "command_duration_seconds",
			Help:      "Histogram of traced command durations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (c *Client) Metrics() []m.Collector {
	return m.PrometheusCollectorsFromFields(c.metrics)
}
