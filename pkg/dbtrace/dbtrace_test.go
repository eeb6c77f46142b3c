// Copyright 2021 The Jaegertrace Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dbtrace_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/lcoolcool/jaegertrace-go/pkg/dbtrace"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing"
	"github.com/lcoolcool/jaegertrace-go/pkg/tracing/traceconf"
	"github.com/opentracing/opentracing-go/mocktracer"
)

func TestExecContext(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	parent := mt.StartSpan("request")
	ctx := tracing.PushSpan(context.Background(), parent)

	db := &fakeDB{result: fakeResult(3)}
	service := dbtrace.New(db, tracer, nil, "orders-service", nil)

	result, err := service.ExecContext(ctx, "SELECT 1 FROM t")
	if err != nil {
		t.Fatal(err)
	}
	if rows, _ := result.RowsAffected(); rows != 3 {
		t.Errorf("got %v rows affected, want 3", rows)
	}
	parent.Finish()

	finished := mt.FinishedSpans()
	if len(finished) != 2 {
		t.Fatalf("got %v finished spans, want 2", len(finished))
	}

	span := finished[0]
	if span.OperationName != dbtrace.OperationName {
		t.Errorf("got operation name %q, want %q", span.OperationName, dbtrace.OperationName)
	}
	parentContext := parent.Context().(mocktracer.MockSpanContext)
	if span.ParentID != parentContext.SpanID {
		t.Errorf("got parent id %v, want %v", span.ParentID, parentContext.SpanID)
	}
	if span.SpanContext.TraceID != parentContext.TraceID {
		t.Errorf("got trace id %v, want %v", span.SpanContext.TraceID, parentContext.TraceID)
	}
	if v := span.Tag("component"); v != "database" {
		t.Errorf("got component tag %v, want database", v)
	}
	if v := span.Tag("db.statement"); v != "SELECT 1 FROM t" {
		t.Errorf("got statement tag %v, want the query", v)
	}
	if v := span.Tag("db.instance"); v != "orders-service" {
		t.Errorf("got instance tag %v, want orders-service", v)
	}
	if v := span.Tag("db.rows_affected"); v != int64(3) {
		t.Errorf("got rows affected tag %v, want 3", v)
	}
	if d, ok := span.Tag(tracing.TagDurationMS).(float64); !ok || d < 0 {
		t.Errorf("got duration tag %v, want non-negative float", span.Tag(tracing.TagDurationMS))
	}
	if v := span.Tag("error"); v != nil {
		t.Errorf("got error tag %v, want none", v)
	}
}

func TestExecContext_disabled(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"database": {"enabled": false},
	})
	if err != nil {
		t.Fatal(err)
	}

	db := &fakeDB{result: fakeResult(1)}
	service := dbtrace.New(db, tracer, conf, "orders-service", nil)

	result, err := service.ExecContext(context.Background(), "DELETE FROM t")
	if err != nil {
		t.Fatal(err)
	}
	if rows, _ := result.RowsAffected(); rows != 1 {
		t.Errorf("got %v rows affected, want 1", rows)
	}
	if db.lastQuery != "DELETE FROM t" {
		t.Errorf("got query %q, want it untouched", db.lastQuery)
	}
	if l := len(mt.FinishedSpans()); l != 0 {
		t.Errorf("got %v finished spans for disabled component, want 0", l)
	}
}

func TestExecContext_ignoredStatement(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"database": {"ignore_sqls": []string{"SELECT 1"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	service := dbtrace.New(&fakeDB{result: fakeResult(0)}, tracer, conf, "", nil)
	if _, err := service.ExecContext(context.Background(), "SELECT 1"); err != nil {
		t.Fatal(err)
	}
	if l := len(mt.FinishedSpans()); l != 0 {
		t.Errorf("got %v finished spans for ignored statement, want 0", l)
	}
}

func TestExecContext_error(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	wantErr := errors.New("deadlock detected")
	service := dbtrace.New(&fakeDB{err: wantErr}, tracer, nil, "", nil)

	_, err := service.ExecContext(context.Background(), "UPDATE t SET a = 1")
	if !errors.Is(err, wantErr) {
		t.Fatalf("got error %v, want %v", err, wantErr)
	}

	finished := mt.FinishedSpans()
	if len(finished) != 1 {
		t.Fatalf("got %v finished spans, want 1", len(finished))
	}
	if v := finished[0].Tag("error"); v != true {
		t.Errorf("got error tag %v, want true", v)
	}
}

func TestExecContext_statementTruncated(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	conf, err := traceconf.New(map[string]map[string]interface{}{
		"database": {"max_query_length": 10},
	})
	if err != nil {
		t.Fatal(err)
	}

	service := dbtrace.New(&fakeDB{result: fakeResult(0)}, tracer, conf, "", nil)
	query := "SELECT " + strings.Repeat("x", 100)
	if _, err := service.ExecContext(context.Background(), query); err != nil {
		t.Fatal(err)
	}

	got, _ := mt.FinishedSpans()[0].Tag("db.statement").(string)
	if len(got) != 10 {
		t.Errorf("got statement tag of length %v, want 10", len(got))
	}
}

func TestQueryContext_error(t *testing.T) {
	mt := mocktracer.New()
	tracer := tracing.NewFromOpenTracing(mt, nil)

	wantErr := errors.New("syntax error")
	service := dbtrace.New(&fakeDB{err: wantErr}, tracer, nil, "", nil)

	if _, err := service.QueryContext(context.Background(), "SELEC 1"); !errors.Is(err, wantErr) {
		t.Fatalf("got error %v, want %v", err, wantErr)
	}
	finished := mt.FinishedSpans()
	if len(finished) != 1 {
		t.Fatalf("got %v finished spans, want 1", len(finished))
	}
	if v := finished[0].Tag("error"); v != true {
		t.Errorf("got error tag %v, want true", v)
	}
}

type fakeDB struct {
	result    sql.Result
	err       error
	lastQuery string
}

func (f *fakeDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }
