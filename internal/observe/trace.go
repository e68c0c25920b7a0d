package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/MrWong99/voxnote"

// Tracer is the tracer every voxnote span comes from. It resolves through the
// global provider on each call, so spans started before [InitProvider] runs
// are no-ops rather than lost configuration.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// StartSpan is shorthand for Tracer().Start. End the returned span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID is the trace ID of the span carried by ctx, hex encoded, or
// "" outside a span. The admin server returns it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger is slog.Default tagged with trace_id and span_id when ctx carries a
// span. Controller and session code log through it so a note's save and its
// dictation stream line up with the trace.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
