// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package httptrace

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
)

// Middleware creates a handler wrapper that continues a trace arriving in
// the request headers: it extracts the remote parent, opens a server span
// around the inner handler and makes the span current in the request
// context, so spans opened by downstream adapters nest under it. After the
// request is served an access log line correlated by trace id is emitted.
func Middleware(tracer *tracing.Tracer, conf *traceconf.Config, logger logging.Logger) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "" {
				path = "/"
			}
			if !conf.ShouldTrace(Component, path) {
				h.ServeHTTP(w, r)
				return
			}

			// absent or malformed headers yield a nil parent and a new trace root
			parent, _ := tracer.FromHTTPHeaders(r.Header)

			span := tracer.StartSpan(r.Method+" "+path, parent)
			ext.SpanKindRPCServer.Set(span)
			ext.Component.Set(span, Component)
			ext.HTTPMethod.Set(span, r.Method)
			ext.HTTPUrl.Set(span, r.URL.String())

			ctx := tracing.PushSpan(r.Context(), span)
			rl := &responseLogger{w: w}
			startTime := time.Now()

			defer func() {
				status := rl.status
				if status == 0 {
					status = http.StatusOK
				}
				ext.HTTPStatusCode.Set(span, uint16(status))
				if status >= http.StatusInternalServerError {
					ext.Error.Set(span, true)
				}
				tracing.FinishSpan(span, startTime, 0)

				if logger == nil {
					return
				}
				ip, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					ip = r.RemoteAddr
				}
				tracing.NewLoggerWithTraceID(ctx, logger).WithFields(logrus.Fields{
					"ip":       ip,
					"method":   r.Method,
					"uri":      r.RequestURI,
					"proto":    r.Proto,
					"status":   status,
					"size":     rl.size,
					"duration": time.Since(startTime).Seconds(),
				}).Info("http request")
			}()

			h.ServeHTTP(rl, r.WithContext(ctx))
		})
	}
}

type responseLogger struct {
	w      http.ResponseWriter
	status int
	size   int
}

func (l *responseLogger) Header() http.Header {
	return l.w.Header()
}

func (l *responseLogger) Flush() {
	l.w.(http.Flusher).Flush()
}

func (l *responseLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return l.w.(http.Hijacker).Hijack()
}

func (l *responseLogger) Push(target string, opts *http.PushOptions) error {
	return l.w.(http.Pusher).Push(target, opts)
}

func (l *responseLogger) Write(b []byte) (int, error) {
	size, err := l.w.Write(b)
	l.size += size
	return size, err
}

func (l *responseLogger) WriteHeader(s int) {
	l.w.WriteHeader(s)
	if l.status == 0 {
		l.status = s
	}
}
