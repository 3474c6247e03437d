package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartJobSpan creates a span for one background job run. Returns the
// new context and a function to end the span with the run's outcome.
//
// Example usage:
//
//	ctx, endSpan := tracing.StartJobSpan(ctx, "full_recompute")
//	err := run(ctx)
//	endSpan(err)
func StartJobSpan(ctx context.Context, jobType string) (context.Context, func(error)) {
	tracer := otel.Tracer("rankd/jobs")

	ctx, span := tracer.Start(ctx, "job "+jobType,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("job.type", jobType)),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// StartDBSpan creates a span for a database operation against one table.
func StartDBSpan(ctx context.Context, table, operation string) (context.Context, func(error)) {
	tracer := otel.Tracer("rankd/db")

	spanName := operation
	if table != "" {
		spanName = operation + " " + table
	}

	ctx, span := tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", operation),
		),
	)
	if table != "" {
		span.SetAttributes(attribute.String("db.sql.table", table))
	}

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
