// Package history persists scheduler run records to a local SQLite file.
//
// The engine keeps a short in-memory ring for quick status queries; this
// package is the durable audit trail that survives restarts. Jobs themselves
// are never persisted, only what ran and how it went.
package history
