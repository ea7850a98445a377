// Package metrics provides a caching factory for OpenTelemetry counters and histograms.
//
// Catalog operations and the mongo client record through the builders returned
// here, so instruments are created once per name and shared across goroutines.
package metrics
