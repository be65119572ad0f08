package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/veil/internal/requestctx"
)

func TestTraceContextFrom_NoSpan(t *testing.T) {
	traceID, spanID := TraceContextFrom(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}

func TestLogRequestFields(t *testing.T) {
	tid, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})

	tests := []struct {
		name    string
		ctx     context.Context
		want    []string
		missing []string
	}{
		{
			name:    "empty context",
			ctx:     context.Background(),
			missing: []string{"trace_id", "span_id", "caller", "correlation_id"},
		},
		{
			name: "span only",
			ctx:  trace.ContextWithSpanContext(context.Background(), sc),
			want: []string{
				`"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"`,
				`"span_id":"00f067aa0ba902b7"`,
			},
			missing: []string{"caller", "correlation_id"},
		},
		{
			name: "caller and correlation id",
			ctx: requestctx.SetCorrelationID(
				requestctx.SetCaller(context.Background(), "billing-bot"), "req-42"),
			want:    []string{`"caller":"billing-bot"`, `"correlation_id":"req-42"`},
			missing: []string{"trace_id"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)
			logger.Info().Func(LogRequestFields(tt.ctx)).Msg("anonymize_completed")
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, m := range tt.missing {
				assert.NotContains(t, buf.String(), m)
			}
		})
	}
}
