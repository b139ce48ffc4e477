package telemetry

import (
	"context"

	"github.com/procurement/backend/internal/domain/shared"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts an internal span on the global tracer
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// EndSpan records the outcome of the operation and ends span. Domain errors
// are expected outcomes and only annotate the span; anything else marks it
// failed.
func EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	if kind := shared.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
