package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"disabled", Config{ServiceName: "veil", Version: "dev"}},
		{"stdout", Config{ServiceName: "veil", Version: "1.0.0", Enabled: true}},
		{"stdout explicit", Config{ServiceName: "veil", Version: "", Enabled: true, Exporter: ExporterStdout}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shutdown, err := Setup(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, shutdown, "shutdown function must not be nil")

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, shutdown(ctx), "shutdown should complete without error")
		})
	}
}

func TestSetupUnknownExporter(t *testing.T) {
	_, err := Setup(Config{ServiceName: "veil", Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exporter")
}

func TestSetupInstallsPropagator(t *testing.T) {
	_, err := Setup(Config{ServiceName: "veil"})
	require.NoError(t, err)
	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
}

func TestOTLPOptionsOmitEmptyEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     int
	}{
		{"unset keeps env and exporter default", "", 1},
		{"explicit endpoint", "collector:4317", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Exporter: ExporterOTLP, Endpoint: tt.endpoint}
			assert.Len(t, traceGRPCOptions(cfg), tt.want)
			assert.Len(t, traceHTTPOptions(cfg), tt.want)
			assert.Len(t, metricGRPCOptions(cfg), tt.want)
			assert.Len(t, metricHTTPOptions(cfg), tt.want)
		})
	}
}

func TestSetupOTLPWithoutEndpoint(t *testing.T) {
	// Exporters connect lazily, so setup succeeds with no collector running.
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://127.0.0.1:4317")
	shutdown, err := Setup(Config{ServiceName: "veil", Enabled: true, Exporter: ExporterOTLP})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
