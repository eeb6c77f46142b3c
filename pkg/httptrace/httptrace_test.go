// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httptrace_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lcoolcool/jaegertrace-go/pkg/httptrace"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/mocktracer"
)

func TestRoundTripper(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: httptrace.RoundTripper(nil, tracer, nil, nil)}

	parent := mt.StartSpan("request")
	ctx := tracing.PushSpan(context.Background(), parent)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/orders", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "done" {
		t.Errorf("got body %q, want done", body)
	}
	parent.Finish()

	// trace context must have been injected into the outgoing headers
	if gotHeader.Get("Mockpfx-Ids-Traceid") == "" {
		t.Error("trace context header not injected")
	}
	// but the caller's request must be untouched
	if req.Header.Get("Mockpfx-Ids-Traceid") != "" {
		t.Error("caller's request headers were mutated")
	}

	finished := mt.FinishedSpans()
	if len(finished) != 2 {
		t.Fatalf("got %v finished spans, want 2", len(finished))
	}

	span := finished[0]
	if span.OperationName != "GET /orders" {
		t.Errorf("got operation name %q, want %q", span.OperationName, "GET /orders")
	}
	parentContext := parent.Context().(mocktracer.MockSpanContext)
	if span.ParentID != parentContext.SpanID {
		t.Errorf("got parent id %v, want %v", span.ParentID, parentContext.SpanID)
	}
	if v := span.Tag("http.status_code"); v != uint16(http.StatusCreated) {
		t.Errorf("got status code tag %v, want 201", v)
	}
	if v := span.Tag("error"); v != nil {
		t.Errorf("got error tag %v, want none", v)
	}
}

func TestRoundTripper_disabled(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"http_requests": {"enabled": false},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Mockpfx-Ids-Traceid") != "" {
			t.Error("trace context injected for disabled component")
		}
		_, _ = w.Write([]byte("plain"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: httptrace.RoundTripper(nil, tracer, conf, nil)}
	resp, err := client.Get(srv.URL + "/y")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "plain" {
		t.Errorf("got body %q, want plain", body)
	}
	if l := len(mt.FinishedSpans()); l != 0 {
		t.Errorf("got %v finished spans for disabled component, want 0", l)
	}
}

func TestRoundTripper_ignoredURL(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"http_requests": {"ignore_urls": []string{"/health"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	client := &http.Client{Transport: httptrace.RoundTripper(nil, tracer, conf, nil)}
	resp, err := client.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if l := len(mt.FinishedSpans()); l != 0 {
		t.Errorf("got %v finished spans for ignored url, want 0", l)
	}
}

func TestRoundTripper_errorStatus(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := &http.Client{Transport: httptrace.RoundTripper(nil, tracer, nil, nil)}
	resp, err := client.Get(srv.URL + "/upstream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	finished := mt.FinishedSpans()
	if len(finished) != 1 {
		t.Fatalf("got %v finished spans, want 1", len(finished))
	}
	if v := finished[0].Tag("error"); v != true {
		t.Errorf("got error tag %v, want true", v)
	}
}

func TestRoundTripper_transportError(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	client := &http.Client{Transport: httptrace.RoundTripper(nil, tracer, nil, nil)}
	// closed server, the dial must fail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	if _, err := client.Get(url + "/gone"); err == nil {
		t.Fatal("got nil error from closed server")
	}

	finished := mt.FinishedSpans()
	if len(finished) != 1 {
		t.Fatalf("got %v finished spans, want 1", len(finished))
	}
	if v := finished[0].Tag("error"); v != true {
		t.Errorf("got error tag %v, want true", v)
	}
}

func TestMiddleware(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	handler := newMiddleware(t, tracer, func(w http.ResponseWriter, r *http.Request) {
		if tracing.CurrentSpan(r.Context()) == nil {
			t.Error("no current span inside handler")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	// continue a trace started on the client side
	remote := mt.StartSpan("client-side")
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/orders", nil)
	if err != nil {
		t.Fatal(err)
	}
	carrier := make(tracing.Carrier)
	tracer.InjectCarrier(remote.Context(), carrier)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	remote.Finish()

	var server *mocktracer.MockSpan
	for _, s := range mt.FinishedSpans() {
		if s.OperationName == "GET /orders" {
			server = s
		}
	}
	if server == nil {
		t.Fatal("server span not finished")
	}

	remoteContext := remote.Context().(mocktracer.MockSpanContext)
	if server.ParentID != remoteContext.SpanID {
		t.Errorf("got parent id %v, want %v", server.ParentID, remoteContext.SpanID)
	}
	if server.SpanContext.TraceID != remoteContext.TraceID {
		t.Errorf("got trace id %v, want %v", server.SpanContext.TraceID, remoteContext.TraceID)
	}
	if v := server.Tag("http.status_code"); v != uint16(http.StatusNoContent) {
		t.Errorf("got status code tag %v, want 204", v)
	}
}

func TestMiddleware_ignoredURL(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"http_requests": {"ignore_urls": []string{"/health"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	handler := httptrace.Middleware(tracer, conf, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if l := len(mt.FinishedSpans()); l != 0 {
		t.Errorf("got %v finished spans for ignored url, want 0", l)
	}
}

func newMiddleware(t *testing.T, tracer *tracing.Tracer, h http.HandlerFunc) http.Handler {
	t.Helper()
	return httptrace.Middleware(tracer, nil, nil)(h)
}
