// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tracing

import (
	"context"
	"errors"
	"net/http"

	"github.com/opentracing/opentracing-go"
)

// ErrContextNotFound is returned when tracing context is not present
// in carrier headers or context.
var ErrContextNotFound = errors.New("tracing context not found")

// Carrier is the flat string-keyed representation of a span identity that
// crosses process boundaries (http headers, task headers, message
// properties).
type Carrier = map[string]string

// InjectCarrier encodes the span context into carrier in text-map format.
// Injection is strictly best-effort: any tracer failure is swallowed and the
// carrier is left as is, so that the outgoing call proceeds untraced
// downstream but still traced locally.
func (t *Tracer) InjectCarrier(sc opentracing.SpanContext, carrier Carrier) {
	if t == nil {
		t = noopTracer
	}
	if sc == nil || carrier == nil {
		return
	}
	if err := t.tracer.Inject(sc, opentracing.TextMap, opentracing.TextMapCarrier(carrier)); err != nil {
		t.debugf("tracing: inject carrier: %v", err)
	}
}

// ExtractCarrier decodes a span context from carrier. An absent or malformed
// carrier yields nil, never an error; the consuming span then starts a new
// trace root.
func (t *Tracer) ExtractCarrier(carrier Carrier) opentracing.SpanContext {
	if t == nil {
		t = noopTracer
	}
	if len(carrier) == 0 {
		return nil
	}
	sc, err := t.tracer.Extract(opentracing.TextMap, opentracing.TextMapCarrier(carrier))
	if err != nil {
		if !errors.Is(err, opentracing.ErrSpanContextNotFound) {
			t.debugf("tracing: extract carrier: %v", err)
		}
		return nil
	}
	return sc
}

// AddContextHTTPHeader adds a tracing span context to provided HTTP headers
// from the go context. If the tracing span context is not present in
// go context, ErrContextNotFound is returned.
func (t *Tracer) AddContextHTTPHeader(ctx context.Context, headers http.Header) error {
	if t == nil {
		t = noopTracer
	}

	c := ParentContext(ctx)
	if c == nil {
		return ErrContextNotFound
	}

	carrier := opentracing.HTTPHeadersCarrier(headers)
	if err := t.tracer.Inject(c, opentracing.HTTPHeaders, carrier); err != nil {
		return err
	}

	return nil
}

// FromHTTPHeaders returns tracing span context from HTTP headers. If the
// tracing span context is not present in the headers, ErrContextNotFound is
// returned.
func (t *Tracer) FromHTTPHeaders(headers http.Header) (opentracing.SpanContext, error) {
	if t == nil {
		t = noopTracer
	}

	carrier := opentracing.HTTPHeadersCarrier(headers)
	c, err := t.tracer.Extract(opentracing.HTTPHeaders, carrier)
	if err != nil {
		if errors.Is(err, opentracing.ErrSpanContextNotFound) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}

	return c, nil
}

// WithContextFromHTTPHeaders returns a new context with injected tracing span
// context if they are found in HTTP headers. If the tracing span context is
// not present in the headers, the context is returned unchanged together with
// ErrContextNotFound.
func (t *Tracer) WithContextFromHTTPHeaders(ctx context.Context, headers http.Header) (context.Context, error) {
	if t == nil {
		t = noopTracer
	}

	c, err := t.FromHTTPHeaders(headers)
	if err != nil {
		return ctx, err
	}

	return WithContext(ctx, c), nil
}
