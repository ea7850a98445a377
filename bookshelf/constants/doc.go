// Package constant holds shared literals for bookshelf: telemetry attribute keys,
// catalog field names and query defaults.
//
// Keep this package free of runtime behavior beyond trivial helpers.
package constant
