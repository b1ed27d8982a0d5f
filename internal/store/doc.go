// Package store exports analysis runs to SQLite.
//
// Every run gets a UUIDv7 id and its own rows in each table, so one database
// can hold many runs and compare them with plain SQL:
//   - runs: one summary row per run
//   - sessions: reconstructed sessions with their derived statistics
//   - programs / program_flags: unique programs and their classification
//   - program_uses: per-player program timelines
//   - unresolved_artifacts: artifacts whose program could not be loaded
//
// A run is written in a single transaction. Flag sets and skip counters are
// stored as RFC 8785 canonical JSON where they are stored as JSON at all.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
