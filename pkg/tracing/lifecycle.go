// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracing

import (
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/atomic"
)

// Standard tag names shared by all adapters, complementing the opentracing
// ext vocabulary.
const (
	TagDurationMS = "duration_ms"
	TagSlow       = "slow"
)

// TagError marks the span as failed and records a structured error event
// with the error kind and message. A nil span or nil error is a no-op.
func TagError(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	ext.Error.Set(span, true)
	span.LogKV(
		"event", "error",
		"error.kind", fmt.Sprintf("%T", err),
		"error.object", err,
		"message", err.Error(),
	)
}

// FinishSpan records the operation duration on the span, flags it as slow
// when the configured threshold is exceeded, and finishes it. The underlying
// tracer does not guarantee idempotent Finish, so each adapter must call this
// exactly once per span on every exit path.
func FinishSpan(span opentracing.Span, started time.Time, slowThreshold time.Duration) {
	if span == nil {
		return
	}
	elapsed := time.Since(started)
	span.SetTag(TagDurationMS, float64(elapsed)/float64(time.Millisecond))
	if slowThreshold > 0 && elapsed >= slowThreshold {
		span.SetTag(TagSlow, true)
	}
	span.Finish()
}

// Finisher closes over a span whose ownership transfers to a completion
// callback, guaranteeing exactly one finish even when dispatch failure and
// callback race to close it.
type Finisher struct {
	span          opentracing.Span
	started       time.Time
	slowThreshold time.Duration
	done          atomic.Bool
}

// NewFinisher starts the finish clock for span. The span stays open until
// Finish is called.
func NewFinisher(span opentracing.Span, slowThreshold time.Duration) *Finisher {
	return &Finisher{
		span:          span,
		started:       time.Now(),
		slowThreshold: slowThreshold,
	}
}

// Finish tags the error if err is non-nil and finishes the span. Only the
// first call has any effect.
func (f *Finisher) Finish(err error) {
	if f == nil || f.span == nil {
		return
	}
	if !f.done.CAS(false, true) {
		return
	}
	TagError(f.span, err)
	FinishSpan(f.span, f.started, f.slowThreshold)
}

// Span returns the underlying span for tagging before completion.
func (f *Finisher) Span() opentracing.Span {
	if f == nil {
		return nil
	}
	return f.span
}
