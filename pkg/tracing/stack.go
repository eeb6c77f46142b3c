// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracing

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
)

// ErrEmptySpanStack is returned by PopSpan when the context holds no active
// span. It signals unbalanced push/pop calls, which is an adapter bug.
var ErrEmptySpanStack = errors.New("tracing: pop on empty span stack")

// spanStackKey is used to reference the active-span stack as context value.
type spanStackKey struct{}

// spanStack is an immutable singly linked stack of active spans. Each
// logical unit of execution derives its own context chain, so concurrent
// call chains never share mutable stack state.
type spanStack struct {
	span opentracing.Span
	prev *spanStack
}

func stackFromContext(ctx context.Context) *spanStack {
	s, ok := ctx.Value(spanStackKey{}).(*spanStack)
	if !ok {
		return nil
	}
	return s
}

// PushSpan makes span the current span of the returned context, preserving
// the previously current span beneath it.
func PushSpan(ctx context.Context, span opentracing.Span) context.Context {
	if span == nil {
		return ctx
	}
	return context.WithValue(ctx, spanStackKey{}, &spanStack{
		span: span,
		prev: stackFromContext(ctx),
	})
}

// CurrentSpan returns the span currently in progress for the call chain of
// ctx, or nil when no span is active.
func CurrentSpan(ctx context.Context) opentracing.Span {
	if s := stackFromContext(ctx); s != nil {
		return s.span
	}
	return nil
}

// PopSpan removes the current span, restoring the prior current span. The
// span itself is not finished. Popping an empty stack returns
// ErrEmptySpanStack together with the unchanged context.
func PopSpan(ctx context.Context) (context.Context, error) {
	s := stackFromContext(ctx)
	if s == nil {
		return ctx, ErrEmptySpanStack
	}
	return context.WithValue(ctx, spanStackKey{}, s.prev), nil
}

// SpanDepth returns the number of active spans on the stack of ctx.
func SpanDepth(ctx context.Context) int {
	depth := 0
	for s := stackFromContext(ctx); s != nil; s = s.prev {
		depth++
	}
	return depth
}

// WithSpan runs fn with span pushed as the current span of the derived
// context. The stack of ctx itself is left untouched on every exit path,
// including panics, so push/pop balance cannot be violated by fn.
func WithSpan(ctx context.Context, span opentracing.Span, fn func(ctx context.Context) error) error {
	return fn(PushSpan(ctx, span))
}
