// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mqtrace

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

type metrics struct {
	TotalSent   m.Counter
	TotalErrors m.Counter
}

func newMetrics() metrics {
	subsystem := "mqtrace"

	return metrics{
		TotalSent: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_sent",
			Help:      "Total traced message sends.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_send_errors",
			Help:      "Total failed message sends.",
		}),
	}
}

// Metrics returns the collectors of the producer.
func (p *TracedProducer) Metrics() []m.Collector {
	return m.PrometheusCollectorsFromFields(p.metrics)
}

type consumerMetrics struct {
	TotalConsumed   m.Counter
	TotalErrors     m.Counter
	ConsumeDuration m.Histogram
}

func newConsumerMetrics() consumerMetrics {
	subsystem := "mqtrace"

	return consumerMetrics{
		TotalConsumed: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_consumed",
			Help:      "Total traced message consumptions.",
		}),
		TotalErrors: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "total_consume_errors",
			Help:      "Total failed message consumptions.",
		}),
		ConsumeDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "consume_duration_seconds",
			Help:      "Histogram of message consumption durations.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
