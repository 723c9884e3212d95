// Package repository implements the SurrealDB data access layer for presence.
//
// LayerRepository backs the layer directory and AccountRepository reads
// account roles and persists each account's last selected layer.
//
// # Query Patterns
//
//   - Parameterized queries with $variable syntax
//   - type::record() for safe ID handling
//   - time::now() for automatic timestamps
//   - database.AtomicBatch for writes that must land together
//
// # Default Layer Exclusivity
//
// Create and Update clear is_default on every other layer inside the same
// transaction that sets it, so no reader observes two defaults.
//
// # Not Found
//
// Get methods return nil, nil for missing records. Callers decide whether
// absence is an error.
package repository
