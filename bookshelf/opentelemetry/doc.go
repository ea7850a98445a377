// Package opentelemetry bootstraps tracing, metrics and log export for bookshelf
// and provides span error helpers.
//
// With EnableTelemetry off, InitializeTelemetry returns local providers that
// export nothing, so instrumented code runs unchanged.
package opentelemetry
