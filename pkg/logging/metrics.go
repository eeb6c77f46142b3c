// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logging

import (
	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
	"github.com/sirupsen/logrus"
)

type metrics struct {
	// all metrics fields must be exported
	// to be able to return them by Metrics()
	// using reflection
	MessageCount *m.CounterVec
}

func newMetrics() metrics {
	subsystem := "log"

	return metrics{
		MessageCount: m.NewCounterVec(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "message_count",
			Help:      "Number of log messages, partitioned by log level.",
		}, []string{"level"}),
	}
}

// Levels implements the logrus.Hook interface.
func (metrics) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements the logrus.Hook interface.
func (m metrics) Fire(e *logrus.Entry) error {
	m.MessageCount.WithLabelValues(e.Level.String()).Inc()
	return nil
}

func (l *logger) Metrics() (cs []m.Collector) {
	return m.PrometheusCollectorsFromFields(l.metrics)
}
