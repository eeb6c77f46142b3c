// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics_test

import (
	"strings"
	"testing"

	m "github.com/lcoolcool/jaegertrace-go/pkg/metrics"
)

func TestPrometheusCollectorsFromFields(t *testing.T) {
	s := newService()
	collectors := m.PrometheusCollectorsFromFields(s)

	if l := len(collectors); l != 2 {
		t.Fatalf("got %v collectors %+v, want 2", l, collectors)
	}

	m1 := collectors[0].(m.Metric).Desc().String()
	if !strings.Contains(m1, "adapter_operation_count") {
		t.Errorf("unexpected metric %s", m1)
	}

	m2 := collectors[1].(m.Metric).Desc().String()
	if !strings.Contains(m2, "adapter_operation_duration_seconds") {
		t.Errorf("unexpected metric %s", m2)
	}
}

type service struct {
	// valid metrics
	OperationCount    m.Counter
	OperationDuration m.Histogram
	// invalid metrics
	unexportedCount    m.Counter
	UninitializedCount m.Counter
}

func newService() *service {
	subsystem := "adapter"
	return &service{
		OperationCount: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "operation_count",
			Help:      "Number of traced operations.",
		}),
		OperationDuration: m.NewHistogram(m.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Histogram of traced operation durations.",
			Buckets:   []float64{0.01, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		unexportedCount: m.NewCounter(m.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "unexported_count",
			Help:      "This metric should not be discoverable by metrics.PrometheusCollectorsFromFields.",
		}),
	}
}
