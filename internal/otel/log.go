package otel

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/veil/internal/requestctx"
)

// TraceContextFrom returns trace_id and span_id from the span in ctx, if any.
func TraceContextFrom(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// LogRequestFields returns a zerolog hook that tags an event with whatever
// request identity ctx carries: trace_id and span_id of the active span, the
// authenticated caller and the correlation_id echoed to the client. Empty
// values are left out so logs stay clean without auth or tracing.
//
//	log.Info().Str("session_id", id).Func(otel.LogRequestFields(ctx)).Msg("anonymize_completed")
func LogRequestFields(ctx context.Context) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		if traceID, spanID := TraceContextFrom(ctx); traceID != "" {
			e.Str("trace_id", traceID).Str("span_id", spanID)
		}
		if caller := requestctx.Caller(ctx); caller != "" {
			e.Str("caller", caller)
		}
		if id := requestctx.CorrelationID(ctx); id != "" {
			e.Str("correlation_id", id)
		}
	}
}
