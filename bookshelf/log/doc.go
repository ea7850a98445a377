// Package log defines the logging interface and typed fields used across bookshelf.
//
// Backends (such as the zap package) implement Logger so the catalog and the
// mongo client never depend on a concrete logging library.
package log
