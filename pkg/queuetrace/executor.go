// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queuetrace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/ext"
)

// Task execution outcomes, recorded on the execution span.
const (
	StateSuccess = "SUCCESS"
	StateFailure = "FAILURE"
	StateRetry   = "RETRY"
)

// Handler executes a task on the worker side.
type Handler func(ctx context.Context, t *Task) (interface{}, error)

// TracedHandler wraps a task handler with execution tracing. The parent
// context injected at dispatch time is extracted from the task headers, so
// the execution span continues the dispatcher's trace. A handler error
// wrapping ErrRetry marks the span as a retry instead of a failure.
func TracedHandler(tracer *tracing.Tracer, conf *traceconf.Config, handler Handler) Handler {
	em := newExecutorMetrics()

	return func(ctx context.Context, t *Task) (interface{}, error) {
		if !conf.ShouldTrace(Component, t.Name) {
			return handler(ctx, t)
		}

		opts := conf.Options(Component)

		parent := tracer.ExtractCarrier(t.Headers)
		if parent == nil {
			parent = tracing.ParentContext(ctx)
		}

		span := tracer.StartSpan("EXECUTE "+t.Name, parent)
		ext.SpanKindConsumer.Set(span)
		ext.Component.Set(span, Component)
		if worker, err := os.Hostname(); err == nil {
			span.SetTag("celery.worker", worker)
		}
		span.SetTag("celery.task_name", t.Name)
		if t.ID != "" {
			span.SetTag("celery.task_id", t.ID)
		}
		if opts.TraceTaskArgs && len(t.Args) > 0 {
			span.SetTag("celery.args", truncateArgs(t.Args, opts.MaxValueLength))
		}
		em.TotalExecuted.Inc()

		started := time.Now()
		result, err := handler(tracing.PushSpan(ctx, span), t)
		em.ExecuteDuration.Observe(time.Since(started).Seconds())

		switch {
		case err == nil:
			span.SetTag("celery.state", StateSuccess)
			if opts.TraceResult && result != nil {
				span.SetTag("celery.result", truncateValue(result, opts.MaxValueLength))
			}
		case errors.Is(err, ErrRetry):
			span.SetTag("celery.state", StateRetry)
			span.SetTag("celery.retry", true)
			em.TotalRetries.Inc()
		default:
			span.SetTag("celery.state", StateFailure)
			tracing.TagError(span, err)
			em.TotalErrors.Inc()
		}
		tracing.FinishSpan(span, started, 0)
		return result, err
	}
}

func truncateArgs(args []interface{}, max int) string {
	return truncateValue(args, max)
}

func truncateValue(v interface{}, max int) string {
	s := fmt.Sprintf("%v", v)
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
