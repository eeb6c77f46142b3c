// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package redistrace instruments cache command execution. It wraps the
// single Do call shape shared by redis client libraries; the host
// application wires the wrapper around its connection at start-up.
package redistrace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Component is the tracing configuration section consulted per command.
const Component = traceconf.Redis

// Conn is the call boundary intercepted by this adapter: one command with
// arguments in, one reply out.
type Conn interface {
	Do(ctx context.Context, command string, args ...interface{}) (interface{}, error)
}

// keyCommands are commands whose first argument is a cache key worth
// recording on the span.
var keyCommands = map[string]struct{}{
	"GET":    {},
	"SET":    {},
	"DEL":    {},
	"EXISTS": {},
	"HGET":   {},
	"HSET":   {},
}

// Client traces commands executed through a wrapped Conn.
type Client struct {
	conn    Conn
	tracer  *tracing.Tracer
	conf    *traceconf.Config
	logger  logging.Logger
	host    string
	port    uint16
	dbIndex int
	metrics metrics
}

// Option configures optional connection metadata recorded on spans.
type Option func(*Client)

// WithAddress records the peer host and port of the wrapped connection.
func WithAddress(host string, port uint16) Option {
	return func(c *Client) {
		c.host = host
		c.port = port
	}
}

// WithDatabaseIndex records the redis database index of the wrapped
// connection.
func WithDatabaseIndex(db int) Option {
	return func(c *Client) {
		c.dbIndex = db
	}
}

// New wraps conn.
func New(conn Conn, tracer *tracing.Tracer, conf *traceconf.Config, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		tracer:  tracer,
		conf:    conf,
		logger:  logger,
		dbIndex: -1,
		metrics: newMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do executes a command through the wrapped Conn, bracketing it with a
// client span when the command is traced. The reply and error of the
// wrapped call are returned unchanged.
func (c *Client) Do(ctx context.Context, command string, args ...interface{}) (interface{}, error) {
	name := strings.ToUpper(command)
	if !c.conf.ShouldTrace(Component, name) {
		return c.conn.Do(ctx, command, args...)
	}

	opts := c.conf.Options(Component)

	span := c.tracer.StartSpan("REDIS "+name, tracing.ParentContext(ctx))
	ext.SpanKindRPCClient.Set(span)
	ext.Component.Set(span, Component)
	ext.DBType.Set(span, "redis")
	ext.DBStatement.Set(span, name)
	if c.host != "" {
		ext.PeerHostname.Set(span, c.host)
		ext.PeerPort.Set(span, c.port)
	}
	if c.dbIndex >= 0 {
		span.SetTag("db.redis.database_index", c.dbIndex)
	}
	if len(args) > 0 {
		span.SetTag("db.redis.args_count", len(args))
		if _, ok := keyCommands[name]; ok {
			span.SetTag("db.redis.key", truncate(fmt.Sprint(args[0]), opts.MaxValueLength))
		}
	}
	c.metrics.TotalCommands.Inc()

	started := time.Now()
	reply, err := c.conn.Do(tracing.PushSpan(ctx, span), command, args...)
	c.metrics.CommandDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		tracing.TagError(span, err)
		c.metrics.TotalErrors.Inc()
	} else {
		tagReply(span, reply, opts.MaxValueLength)
	}
	tracing.FinishSpan(span, started, 0)
	return reply, err
}

func tagReply(span opentracing.Span, reply interface{}, max int) {
	switch r := reply.(type) {
	case nil:
	case []interface{}:
		span.SetTag("db.redis.result_length", len(r))
	case string:
		span.SetTag("db.redis.result_size", len(truncate(r, max)))
	case []byte:
		span.SetTag("db.redis.result_size", len(truncate(string(r), max)))
	}
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
