// Package zap adapts go.uber.org/zap to the bookshelf log.Logger interface.
//
// Entries carry trace_id and span_id when the context holds an active span, and
// New tees every entry into the OpenTelemetry log pipeline through otelzap.
package zap
