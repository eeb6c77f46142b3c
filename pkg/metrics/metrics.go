// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics provides thin helpers over the Prometheus client
// used by all instrumentation packages in this module.
package metrics

import (
	"reflect"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is prefixed before every metric. If it is changed, it must be done
// before any metrics collector is registered.
const Namespace = "jaegertrace"

// Prometheus types aliases
type (
	Collector = prometheus.Collector
	Metric    = prometheus.Metric
	Registry  = prometheus.Registry
	Labels    = prometheus.Labels

	Counter     = prometheus.Counter
	CounterOpts = prometheus.CounterOpts
	CounterVec  = prometheus.CounterVec

	Gauge     = prometheus.Gauge
	GaugeOpts = prometheus.GaugeOpts

	Histogram     = prometheus.Histogram
	HistogramOpts = prometheus.HistogramOpts

	Summary     = prometheus.Summary
	SummaryOpts = prometheus.SummaryOpts
)

// Source is implemented by components that expose their own collectors.
// Wrappers returned behind other interfaces can be asserted to it.
type Source interface {
	Metrics() []Collector
}

func NewCounter(opts CounterOpts) Counter {
	return prometheus.NewCounter(opts)
}

func NewCounterVec(opts CounterOpts, labelNames []string) *CounterVec {
	return prometheus.NewCounterVec(opts, labelNames)
}

func NewGauge(opts GaugeOpts) Gauge {
	return prometheus.NewGauge(opts)
}

func NewHistogram(opts HistogramOpts) Histogram {
	return prometheus.NewHistogram(opts)
}

func NewSummary(opts SummaryOpts) Summary {
	return prometheus.NewSummary(opts)
}

func NewRegistry() *Registry {
	return prometheus.NewRegistry()
}

// PrometheusCollectorsFromFields returns prometheus collectors from struct
// fields that implement the prometheus.Collector interface. Fields that are
// not exported or not initialized are ignored.
func PrometheusCollectorsFromFields(i interface{}) (collectors []prometheus.Collector) {
	v := reflect.Indirect(reflect.ValueOf(i))
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).CanInterface() {
			continue
		}
		if u, ok := v.Field(i).Interface().(prometheus.Collector); ok && u != nil {
			collectors = append(collectors, u)
		}
	}
	return collectors
}
