// Package store provides the simulated ledger state for one command
// invocation: a mapping from access path to stored bytes.
//
// The store is an SQLite database, normally opened in memory so nothing
// survives the process. It is mutated by module publication, genesis write
// set application and the write set of a successful run.
//
// # Ordering
//
// All iteration is ORDER BY path COLLATE BINARY, the same order write sets
// use, so Entries of two identically seeded stores compare byte for byte.
//
// # Database Configuration
//
//   - A single connection: an in-memory database lives and dies with it
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Schema version stamped in PRAGMA user_version; no migrations
package store
