// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package httptrace instruments HTTP traffic on both sides of the wire:
// an http.RoundTripper wrapper for outbound requests and a middleware for
// inbound ones. The host application installs the round tripper on its
// client transport and the middleware on its handler chain at start-up.
package httptrace

import (
	"net/http"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/ext"
)

// Component is the tracing configuration section consulted per request.
const Component = traceconf.HTTPRequests

type roundTripper struct {
	next    http.RoundTripper
	tracer  *tracing.Tracer
	conf    *traceconf.Config
	logger  logging.Logger
	metrics metrics
}

// RoundTripper wraps next with outbound request tracing. A nil next
// defaults to http.DefaultTransport. The returned round tripper never
// mutates the caller's request and returns the wrapped transport's
// response and error unchanged.
func RoundTripper(next http.RoundTripper, tracer *tracing.Tracer, conf *traceconf.Config, logger logging.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{
		next:    next,
		tracer:  tracer,
		conf:    conf,
		logger:  logger,
		metrics: newMetrics(),
	}
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	if path == "" {
		path = "/"
	}
	if !rt.conf.ShouldTrace(Component, path) {
		return rt.next.RoundTrip(req)
	}

	opts := rt.conf.Options(Component)
	ctx := req.Context()

	span := rt.tracer.StartSpan(req.Method+" "+path, tracing.ParentContext(ctx))
	ext.SpanKindRPCClient.Set(span)
	ext.Component.Set(span, Component)
	ext.HTTPMethod.Set(span, req.Method)
	ext.HTTPUrl.Set(span, req.URL.String())
	if host := req.URL.Hostname(); host != "" {
		ext.PeerHostname.Set(span, host)
	}
	if req.ContentLength > 0 {
		span.SetTag("http.request_size", req.ContentLength)
	}
	rt.metrics.TotalRequests.Inc()

	if opts.TraceHeaders {
		// RoundTrippers must not mutate the original request
		req = req.Clone(ctx)
		carrier := make(tracing.Carrier)
		rt.tracer.InjectCarrier(span.Context(), carrier)
		for k, v := range carrier {
			req.Header.Set(k, v)
		}
	}

	started := time.Now()
	resp, err := rt.next.RoundTrip(req)
	rt.metrics.RequestDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		tracing.TagError(span, err)
		rt.metrics.TotalErrors.Inc()
	} else {
		ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))
		if resp.ContentLength > 0 {
			span.SetTag("http.response_size", resp.ContentLength)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			ext.Error.Set(span, true)
			rt.metrics.TotalErrors.Inc()
		}
	}
	tracing.FinishSpan(span, started, 0)
	return resp, err
}
