// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracing

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Func is the homogeneous call shape decorated by Wrap.
type Func func(ctx context.Context, args ...interface{}) (interface{}, error)

// NameFunc builds the operation name from call arguments.
type NameFunc func(args []interface{}) string

// TagFunc attaches component tags to the span before the call runs.
type TagFunc func(span opentracing.Span, args []interface{})

// WrapConfig parameterizes Wrap for one integration with a homogeneous call
// shape that does not warrant a bespoke adapter.
type WrapConfig struct {
	// Component selects the tracing configuration section consulted per
	// call and is set as the component tag.
	Component string
	// Name overrides the default operation name, which is the wrapped
	// function's own name.
	Name NameFunc
	// Tags attaches extra tags to the span. Default is no extra tags.
	Tags TagFunc
	// SlowThreshold flags operations slower than it with the slow tag.
	SlowThreshold time.Duration
}

// Wrap decorates fn with the shared span lifecycle: consult configuration,
// open a child span of the context's current span, run fn with the span
// pushed on the active-span stack, record the outcome and finish. The
// wrapped function preserves fn's argument, result and error contract
// unchanged; failures in name or tag computation never prevent fn from
// running.
func (t *Tracer) Wrap(conf *traceconf.Config, wc WrapConfig, fn Func) Func {
	nameFor := wc.Name
	if nameFor == nil {
		name := funcName(fn)
		nameFor = func([]interface{}) string { return name }
	}

	return func(ctx context.Context, args ...interface{}) (interface{}, error) {
		operationName := t.safeName(nameFor, args)
		if operationName == "" || !conf.ShouldTrace(wc.Component, operationName) {
			return fn(ctx, args...)
		}

		span := t.StartSpan(operationName, ParentContext(ctx))
		if wc.Component != "" {
			ext.Component.Set(span, wc.Component)
		}
		t.safeTags(wc.Tags, span, args)

		started := time.Now()
		result, err := fn(PushSpan(ctx, span), args...)
		TagError(span, err)
		FinishSpan(span, started, wc.SlowThreshold)
		return result, err
	}
}

// safeName evaluates a caller-supplied name generator, degrading to an empty
// name when it panics.
func (t *Tracer) safeName(nameFor NameFunc, args []interface{}) (name string) {
	defer func() {
		if v := recover(); v != nil {
			t.debugf("tracing: name generator panic: %v", v)
			name = ""
		}
	}()
	return nameFor(args)
}

// safeTags evaluates a caller-supplied tag generator, swallowing panics so
// that tag computation can never fail the wrapped call.
func (t *Tracer) safeTags(tags TagFunc, span opentracing.Span, args []interface{}) {
	if tags == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			t.debugf("tracing: tag generator panic: %v", v)
		}
	}()
	tags(span, args)
}

func funcName(fn Func) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "unknown"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
