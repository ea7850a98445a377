// Package mongo connects to MongoDB and adapts driver collections to the
// catalog.Collection contract.
//
// Client owns connection lifecycle (connect with retry, ping, close). Collection
// runs find, aggregate, createIndex and explain commands and classifies index
// errors reported by the server into catalog error kinds.
package mongo
