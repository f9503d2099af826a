package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedQuerier wraps a Querier with one client span per statement.
type TracedQuerier struct {
	inner  Querier
	tracer trace.Tracer
}

// NewTracedQuerier wraps q; spans are created with tracer.
func NewTracedQuerier(q Querier, tracer trace.Tracer) *TracedQuerier {
	return &TracedQuerier{inner: q, tracer: tracer}
}

func (t *TracedQuerier) start(ctx context.Context, op string, sql string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Query executes a query inside a span.
func (t *TracedQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, span := t.start(ctx, "query", sql)
	rows, err := t.inner.Query(ctx, sql, args...)
	finish(span, err)
	return rows, err
}

// Exec executes a statement inside a span.
func (t *TracedQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := t.start(ctx, "exec", sql)
	tag, err := t.inner.Exec(ctx, sql, args...)
	if err == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", tag.RowsAffected()))
	}
	finish(span, err)
	return tag, err
}

// Begin starts a transaction inside a span. Statements on the returned
// transaction are not traced individually.
func (t *TracedQuerier) Begin(ctx context.Context) (pgx.Tx, error) {
	ctx, span := t.start(ctx, "begin", "BEGIN")
	tx, err := t.inner.Begin(ctx)
	finish(span, err)
	return tx, err
}
