// Package store provides SQLite-backed history for twin runs.
//
// The store is append-only:
//   - Runs: one row per started runtime
//   - Cycles: one row per attempted simulation cycle, failed ones included
//   - Readbacks: the monitor values a successful cycle published
//
// # Ordering
//
// Cycle order is the per-run seq counter, never wall time. Queries over
// cycles and readbacks use ORDER BY seq ASC with channel names compared
// COLLATE BINARY, so reads are deterministic.
//
// # Database Configuration
//
//   - WAL mode: history can be read while a twin is writing
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait on lock contention
//   - foreign_keys=ON: readbacks and cycles must reference a run
//
// *Store implements engine.Recorder.
package store
