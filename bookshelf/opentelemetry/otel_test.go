//go:build unit

package opentelemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	recorder := tracetest.NewSpanRecorder()

	return recorder, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
}

func TestInitializeTelemetryValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  TelemetryConfig
		want error
	}{
		{name: "nil logger", cfg: TelemetryConfig{LibraryName: "bookshelf"}, want: ErrNilTelemetryLogger},
		{name: "empty library", cfg: TelemetryConfig{Logger: log.NewNop()}, want: ErrEmptyLibraryName},
		{
			name: "enabled without endpoint",
			cfg:  TelemetryConfig{LibraryName: "bookshelf", EnableTelemetry: true, Logger: log.NewNop()},
			want: ErrEmptyCollectorEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			telemetry, err := InitializeTelemetry(context.Background(), tt.cfg)
			assert.Nil(t, telemetry)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInitializeTelemetryDisabled(t *testing.T) {
	t.Parallel()

	telemetry, err := InitializeTelemetry(context.Background(), TelemetryConfig{
		LibraryName: "bookshelf",
		ServiceName: "bookshelf-cli",
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)
	require.NotNil(t, telemetry)

	assert.NotNil(t, telemetry.TracerProvider)
	assert.NotNil(t, telemetry.MeterProvider)
	assert.NotNil(t, telemetry.LoggerProvider)
	assert.NotNil(t, telemetry.MetricsFactory)
	assert.NotNil(t, telemetry.Tracer())

	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestTelemetryNilReceiver(t *testing.T) {
	t.Parallel()

	var telemetry *Telemetry

	assert.NotNil(t, telemetry.Tracer())
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestHandleSpanError(t *testing.T) {
	t.Parallel()

	recorder, tp := newRecordingTracer()

	_, span := tp.Tracer("test").Start(context.Background(), "catalog.find_available")
	HandleSpanError(span, "Failed to find books", errors.New("server selection timeout"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "Failed to find books: server selection timeout", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestHandleSpanErrorIgnoresNil(t *testing.T) {
	t.Parallel()

	recorder, tp := newRecordingTracer()

	_, span := tp.Tracer("test").Start(context.Background(), "noop")
	HandleSpanError(span, "nothing", nil)
	HandleSpanError(nil, "nothing", errors.New("x"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestHandleSpanEvent(t *testing.T) {
	t.Parallel()

	recorder, tp := newRecordingTracer()

	_, span := tp.Tracer("test").Start(context.Background(), "catalog.ensure_indexes")
	HandleSpanEvent(span, "index.conflict", attribute.String("catalog.index", "title_1"))
	span.End()

	events := recorder.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "index.conflict", events[0].Name)
}
