// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tracing connects to a tracing backend and provides the span
// lifecycle, active-span context and carrier codec primitives used by
// the instrumentation adapters in this module.
package tracing

import (
	"context"
	"io"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
)

// noopTracer is the tracer that does nothing to handle a nil Tracer usage.
var noopTracer = &Tracer{tracer: new(opentracing.NoopTracer)}

// LogField is the key in log message field that holds tracing id value.
const LogField = "traceid"

const (
	// TraceContextHeaderName is the header name used to propagate tracing context.
	TraceContextHeaderName = "trace-id"

	// TraceBaggageHeaderPrefix is the prefix for headers used to propagate baggage.
	TraceBaggageHeaderPrefix = "jaegertrace-"

	// DefaultEndpoint is the agent endpoint traces are reported to when
	// no endpoint is configured.
	DefaultEndpoint = "localhost:5775"
)

// Tracer connects to a tracing server and handles tracing spans and contexts
// by using opentracing Tracer.
type Tracer struct {
	tracer opentracing.Tracer
	logger logging.Logger
}

// Options are optional parameters for Tracer constructor.
type Options struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	// SampleRate is the const sampler parameter, 1 samples every trace.
	SampleRate float64
	// Logger receives diagnostic messages about dropped trace links.
	// Tracing failures are reported there and nowhere else.
	Logger logging.Logger
}

// NewTracer creates a new Tracer and returns a closer which needs to be closed
// when the Tracer is no longer used to flush remaining traces.
func NewTracer(o *Options) (*Tracer, io.Closer, error) {
	if o == nil {
		o = new(Options)
	}
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	sampleRate := o.SampleRate
	if sampleRate == 0 {
		sampleRate = 1
	}

	cfg := config.Configuration{
		Disabled:    !o.Enabled,
		ServiceName: o.ServiceName,
		Sampler: &config.SamplerConfig{
			Type:  jaeger.SamplerTypeConst,
			Param: sampleRate,
		},
		Reporter: &config.ReporterConfig{
			LogSpans:            true,
			BufferFlushInterval: 1 * time.Second,
			LocalAgentHostPort:  o.Endpoint,
		},
		Headers: &jaeger.HeadersConfig{
			TraceContextHeaderName:   TraceContextHeaderName,
			TraceBaggageHeaderPrefix: TraceBaggageHeaderPrefix,
		},
	}

	t, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}
	return &Tracer{tracer: t, logger: o.Logger}, closer, nil
}

// NewFromOpenTracing wraps an existing opentracing Tracer. It is the
// injection point for alternative tracer implementations and for tests.
func NewFromOpenTracing(t opentracing.Tracer, l logging.Logger) *Tracer {
	if t == nil {
		t = new(opentracing.NoopTracer)
	}
	return &Tracer{tracer: t, logger: l}
}

// StartSpan starts a new span as a child of parent, or a new trace root
// when parent is nil. A nil Tracer degrades to a noop span.
func (t *Tracer) StartSpan(operationName string, parent opentracing.SpanContext, opts ...opentracing.StartSpanOption) opentracing.Span {
	if t == nil {
		t = noopTracer
	}
	if parent != nil {
		opts = append(opts, opentracing.ChildOf(parent))
	}
	return t.tracer.StartSpan(operationName, opts...)
}

// StartSpanFromContext starts a new tracing span that is either a root one or
// a child of the span currently active in the provided Context. The new span
// is pushed on the active-span stack of the returned context. If logger is
// provided, a new log Entry will be returned with "traceid" log field.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operationName string, l logging.Logger, opts ...opentracing.StartSpanOption) (opentracing.Span, *logrus.Entry, context.Context) {
	if t == nil {
		t = noopTracer
	}

	span := t.StartSpan(operationName, ParentContext(ctx), opts...)
	return span, loggerWithTraceID(span.Context(), l), PushSpan(ctx, span)
}

// ParentContext resolves the span context a new span should be a child of:
// the span currently active on the context's span stack, or a remote span
// context previously stored with WithContext, or nil for a new trace root.
func ParentContext(ctx context.Context) opentracing.SpanContext {
	if span := CurrentSpan(ctx); span != nil {
		return span.Context()
	}
	return FromContext(ctx)
}

// contextKey is used to reference a remote tracing span context as context value.
type contextKey struct{}

// WithContext adds a remote tracing span context to go context. It marks the
// parent of spans started from this context when no local span is active.
func WithContext(ctx context.Context, c opentracing.SpanContext) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns a remote tracing span context from go context. If the
// tracing span context is not present in go context, nil is returned.
func FromContext(ctx context.Context) opentracing.SpanContext {
	c, ok := ctx.Value(contextKey{}).(opentracing.SpanContext)
	if !ok {
		return nil
	}
	return c
}

// NewLoggerWithTraceID creates a new log Entry with "traceid" field added if
// a span or span context is present in the go context.
func NewLoggerWithTraceID(ctx context.Context, l logging.Logger) *logrus.Entry {
	return loggerWithTraceID(ParentContext(ctx), l)
}

func loggerWithTraceID(sc opentracing.SpanContext, l logging.Logger) *logrus.Entry {
	if l == nil {
		return nil
	}
	jsc, ok := sc.(jaeger.SpanContext)
	if !ok {
		return l.NewEntry()
	}
	traceID := jsc.TraceID()
	if !traceID.IsValid() {
		return l.NewEntry()
	}
	return l.WithField(LogField, traceID.String())
}

// debugf reports a tracing-infrastructure failure on the diagnostic channel.
// Such failures are never propagated to callers.
func (t *Tracer) debugf(format string, args ...interface{}) {
	if t == nil || t.logger == nil {
		return
	}
	t.logger.Debugf(format, args...)
}
