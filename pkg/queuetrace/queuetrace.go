// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queuetrace instruments asynchronous task queues. The dispatch
// side opens a producer span and injects the trace context into the task
// headers before handing the task to the broker; the execution side
// extracts that context on the worker and opens a consumer span around the
// handler, so one trace spans the queue hop.
package queuetrace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/vmihailenco/msgpack/v5"
)

// Component is the tracing configuration section consulted per task.
const Component = traceconf.Celery

// ErrRetry marks a handler error as a retry request. The execution span is
// tagged as retried instead of failed.
var ErrRetry = errors.New("task retry requested")

// ErrAsyncUnsupported is returned by DispatchAsync when the wrapped
// dispatcher has no asynchronous dispatch path.
var ErrAsyncUnsupported = errors.New("wrapped dispatcher does not support async dispatch")

// Task is the unit crossing the queue hop. Headers is the trace carrier;
// the broker must deliver it with the task unchanged.
type Task struct {
	Name    string                 `msgpack:"name"`
	ID      string                 `msgpack:"id"`
	Args    []interface{}          `msgpack:"args"`
	Headers map[string]string      `msgpack:"headers"`
	Options map[string]interface{} `msgpack:"options,omitempty"`
}

// EncodeTask serializes a task for the broker hop.
func EncodeTask(t *Task) ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task %q: %w", t.Name, err)
	}
	return b, nil
}

// DecodeTask deserializes a task received from the broker.
func DecodeTask(b []byte) (*Task, error) {
	var t Task
	if err := msgpack.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

// Dispatcher hands a task to the broker synchronously.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *Task) error
}

// AsyncDispatcher hands a task to the broker and reports completion through
// the done callback. done is invoked exactly once.
type AsyncDispatcher interface {
	DispatchAsync(ctx context.Context, t *Task, done func(error)) error
}

// TracedDispatcher traces task dispatch through a wrapped Dispatcher.
type TracedDispatcher struct {
	next    Dispatcher
	tracer  *tracing.Tracer
	conf    *traceconf.Config
	logger  logging.Logger
	metrics metrics
}

// NewDispatcher wraps next. When next also implements AsyncDispatcher the
// asynchronous path is traced as well.
func NewDispatcher(next Dispatcher, tracer *tracing.Tracer, conf *traceconf.Config, logger logging.Logger) *TracedDispatcher {
	return &TracedDispatcher{
		next:    next,
		tracer:  tracer,
		conf:    conf,
		logger:  logger,
		metrics: newMetrics(),
	}
}

// Dispatch opens a producer span, injects the trace context into the task
// headers and hands the task to the wrapped dispatcher. The dispatch error
// is returned unchanged.
func (d *TracedDispatcher) Dispatch(ctx context.Context, t *Task) error {
	if !d.conf.ShouldTrace(Component, t.Name) {
		return d.next.Dispatch(ctx, t)
	}

	span := d.openSpan(ctx, t)
	started := time.Now()

	err := d.next.Dispatch(tracing.PushSpan(ctx, span), t)
	if err != nil {
		tracing.TagError(span, err)
		d.metrics.TotalErrors.Inc()
	}
	tracing.FinishSpan(span, started, 0)
	return err
}

// DispatchAsync opens a producer span whose ownership transfers to the
// completion callback: the span stays open until the broker reports the
// outcome. The caller's done callback runs after the span is finished.
func (d *TracedDispatcher) DispatchAsync(ctx context.Context, t *Task, done func(error)) error {
	async, ok := d.next.(AsyncDispatcher)
	if !ok {
		return ErrAsyncUnsupported
	}
	if !d.conf.ShouldTrace(Component, t.Name) {
		return async.DispatchAsync(ctx, t, done)
	}

	span := d.openSpan(ctx, t)
	finisher := tracing.NewFinisher(span, 0)

	err := async.DispatchAsync(tracing.PushSpan(ctx, span), t, func(derr error) {
		if derr != nil {
			d.metrics.TotalErrors.Inc()
		}
		finisher.Finish(derr)
		if done != nil {
			done(derr)
		}
	})
	if err != nil {
		// dispatch never reached the broker, the callback will not fire
		d.metrics.TotalErrors.Inc()
		finisher.Finish(err)
	}
	return err
}

func (d *TracedDispatcher) openSpan(ctx context.Context, t *Task) opentracing.Span {
	opts := d.conf.Options(Component)

	span := d.tracer.StartSpan("PUBLISH "+t.Name, tracing.ParentContext(ctx))
	ext.SpanKindProducer.Set(span)
	ext.Component.Set(span, Component)
	span.SetTag("celery.task_name", t.Name)
	if t.ID != "" {
		span.SetTag("celery.task_id", t.ID)
	}
	if opts.TraceTaskArgs && len(t.Args) > 0 {
		span.SetTag("celery.args_count", len(t.Args))
	}

	if t.Headers == nil {
		t.Headers = make(map[string]string)
	}
	d.tracer.InjectCarrier(span.Context(), t.Headers)

	d.metrics.TotalDispatched.Inc()
	return span
}
