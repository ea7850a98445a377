package opentelemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	constant "github.com/LerianStudio/lib-bookshelf/bookshelf/constants"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/log"
	"github.com/LerianStudio/lib-bookshelf/bookshelf/opentelemetry/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNilTelemetryLogger indicates that config.Logger is nil.
	ErrNilTelemetryLogger = errors.New("telemetry config logger cannot be nil")
	// ErrEmptyLibraryName indicates that config.LibraryName is empty.
	ErrEmptyLibraryName = errors.New("telemetry library name cannot be empty")
	// ErrEmptyCollectorEndpoint indicates telemetry is enabled without an endpoint.
	ErrEmptyCollectorEndpoint = errors.New("telemetry collector endpoint cannot be empty when telemetry is enabled")
)

// TelemetryConfig carries the telemetry bootstrap inputs.
type TelemetryConfig struct {
	LibraryName               string
	ServiceName               string
	ServiceVersion            string
	DeploymentEnv             string
	CollectorExporterEndpoint string
	EnableTelemetry           bool
	Logger                    log.Logger
}

func (cfg TelemetryConfig) validate() error {
	if cfg.Logger == nil {
		return ErrNilTelemetryLogger
	}

	if strings.TrimSpace(cfg.LibraryName) == "" {
		return ErrEmptyLibraryName
	}

	if cfg.EnableTelemetry && strings.TrimSpace(cfg.CollectorExporterEndpoint) == "" {
		return ErrEmptyCollectorEndpoint
	}

	return nil
}

// Telemetry holds the providers created by InitializeTelemetry.
type Telemetry struct {
	TelemetryConfig
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	MetricsFactory *metrics.MetricsFactory
	shutdown       func(context.Context) error
}

// Tracer returns a tracer from this telemetry's provider.
func (tl *Telemetry) Tracer() trace.Tracer {
	if tl == nil || tl.TracerProvider == nil {
		return otel.Tracer("bookshelf")
	}

	return tl.TracerProvider.Tracer(tl.LibraryName)
}

// Shutdown flushes and stops every provider and exporter, joining their errors.
func (tl *Telemetry) Shutdown(ctx context.Context) error {
	if tl == nil || tl.shutdown == nil {
		return nil
	}

	return tl.shutdown(ctx)
}

// InitializeTelemetry builds the providers and registers them globally.
// OTLP gRPC exporters are only created when EnableTelemetry is set.
func InitializeTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := cfg.Logger

	if !cfg.EnableTelemetry {
		l.Log(ctx, log.LevelWarn, "telemetry turned off")

		tp := sdktrace.NewTracerProvider()
		mp := sdkmetric.NewMeterProvider()
		lp := sdklog.NewLoggerProvider()

		factory, err := metrics.NewMetricsFactory(mp.Meter(cfg.LibraryName), l)
		if err != nil {
			return nil, err
		}

		return &Telemetry{
			TelemetryConfig: cfg,
			TracerProvider:  tp,
			MeterProvider:   mp,
			LoggerProvider:  lp,
			MetricsFactory:  factory,
			shutdown: func(ctx context.Context) error {
				return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), lp.Shutdown(ctx))
			},
		}, nil
	}

	l.Log(ctx, log.LevelInfo, "initializing telemetry", log.String("endpoint", cfg.CollectorExporterEndpoint))

	res := cfg.newResource()

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.CollectorExporterEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("can't initialize tracer exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorExporterEndpoint), otlpmetricgrpc.WithInsecure())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("can't initialize metric exporter: %w", err), traceExporter.Shutdown(ctx))
	}

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(cfg.CollectorExporterEndpoint), otlploggrpc.WithInsecure())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("can't initialize logger exporter: %w", err),
			traceExporter.Shutdown(ctx), metricExporter.Shutdown(ctx))
	}

	tp := newTracerProvider(res, traceExporter)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	factory, err := metrics.NewMetricsFactory(mp.Meter(cfg.LibraryName), l)
	if err != nil {
		return nil, err
	}

	// Providers shut down their own exporters.
	shutdown := func(ctx context.Context) error {
		return errors.Join(
			wrapShutdown("metric provider", mp.Shutdown(ctx)),
			wrapShutdown("tracer provider", tp.Shutdown(ctx)),
			wrapShutdown("logger provider", lp.Shutdown(ctx)),
		)
	}

	l.Log(ctx, log.LevelInfo, "telemetry initialized")

	return &Telemetry{
		TelemetryConfig: cfg,
		TracerProvider:  tp,
		MeterProvider:   mp,
		LoggerProvider:  lp,
		MetricsFactory:  factory,
		shutdown:        shutdown,
	}, nil
}

func (cfg TelemetryConfig) newResource() *sdkresource.Resource {
	return sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.DeploymentEnv),
		semconv.TelemetrySDKName(constant.TelemetrySDKName),
		semconv.TelemetrySDKLanguageGo,
	)
}

func newTracerProvider(res *sdkresource.Resource, exp *otlptrace.Exporter) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
}

func wrapShutdown(component string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("can't shutdown %s: %w", component, err)
}

// HandleSpanError marks span as failed and records err.
func HandleSpanError(span trace.Span, message string, err error) {
	if span == nil || err == nil {
		return
	}

	span.SetStatus(codes.Error, message+": "+err.Error())
	span.RecordError(err)
}

// HandleSpanEvent adds a named event to span.
func HandleSpanEvent(span trace.Span, eventName string, attributes ...attribute.KeyValue) {
	if span == nil {
		return
	}

	span.AddEvent(eventName, trace.WithAttributes(attributes...))
}
