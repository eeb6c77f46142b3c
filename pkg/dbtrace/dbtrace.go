// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dbtrace instruments relational query execution. It wraps the
// narrow execute/query surface of database/sql style clients, so the host
// application wires it around its own connection handle at start-up instead
// of rebinding driver internals.
package dbtrace

import (
	"context"
	"database/sql"
	"time"

	"github.com/lcoolcool/jaegertrace-go/pkg/logging"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Component is the tracing configuration section consulted per query.
const Component = traceconf.Database

// OperationName is the fixed span name of every traced query. The statement
// itself is recorded as a tag, not as the name, to keep span cardinality low.
const OperationName = "DB_QUERY"

// DB is the call boundary intercepted by this adapter: the ExecContext and
// QueryContext method shapes of *sql.DB, *sql.Tx and *sql.Conn.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Service traces query execution against a wrapped DB. It is stateless
// beyond its cached collaborator references and safe for concurrent use.
type Service struct {
	db       DB
	tracer   *tracing.Tracer
	conf     *traceconf.Config
	instance string
	logger   logging.Logger
	metrics  metrics
}

// New wraps db. The instance name is recorded as the db.instance tag,
// conventionally the service name owning the database.
func New(db DB, tracer *tracing.Tracer, conf *traceconf.Config, instance string, logger logging.Logger) *Service {
	return &Service{
		db:       db,
		tracer:   tracer,
		conf:     conf,
		instance: instance,
		logger:   logger,
		metrics:  newMetrics(),
	}
}

// ExecContext executes a statement through the wrapped DB, bracketing it
// with a client span when the database component is traced. The result and
// error of the wrapped call are returned unchanged.
func (s *Service) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if !s.conf.ShouldTrace(Component, query) {
		return s.db.ExecContext(ctx, query, args...)
	}

	span, opts := s.openSpan(ctx, query)
	started := time.Now()

	result, err := s.db.ExecContext(tracing.PushSpan(ctx, span), query, args...)
	if err != nil {
		tracing.TagError(span, err)
		s.metrics.TotalErrors.Inc()
	} else if result != nil {
		if rows, rerr := result.RowsAffected(); rerr == nil {
			span.SetTag("db.rows_affected", rows)
		}
	}
	s.closeSpan(span, started, opts)
	return result, err
}

// QueryContext executes a query through the wrapped DB, bracketing it with a
// client span when the database component is traced. The span covers the
// statement round trip, not the subsequent row iteration.
func (s *Service) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !s.conf.ShouldTrace(Component, query) {
		return s.db.QueryContext(ctx, query, args...)
	}

	span, opts := s.openSpan(ctx, query)
	started := time.Now()

	rows, err := s.db.QueryContext(tracing.PushSpan(ctx, span), query, args...)
	if err != nil {
		tracing.TagError(span, err)
		s.metrics.TotalErrors.Inc()
	}
	s.closeSpan(span, started, opts)
	return rows, err
}

func (s *Service) openSpan(ctx context.Context, query string) (span opentracing.Span, opts traceconf.Options) {
	opts = s.conf.Options(Component)

	span = s.tracer.StartSpan(OperationName, tracing.ParentContext(ctx))
	ext.SpanKindRPCClient.Set(span)
	ext.Component.Set(span, Component)
	ext.DBType.Set(span, "sql")
	ext.DBInstance.Set(span, s.instance)
	if opts.LogSQL {
		ext.DBStatement.Set(span, truncate(query, opts.MaxQueryLength))
	}
	s.metrics.TotalQueries.Inc()
	return span, opts
}

func (s *Service) closeSpan(span opentracing.Span, started time.Time, opts traceconf.Options) {
	s.metrics.QueryDuration.Observe(time.Since(started).Seconds())
	tracing.FinishSpan(span, started, opts.SlowQueryThreshold)
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
