// Package store provides SQLite storage for pulse chain traces.
//
// Traces are written once a run is over (pulse run --db) and read back by
// pulse trace. The log is append-only:
//   - chains: one row per (run, token); the same token may recur in
//     several runs
//   - trace_events: the recorded trace.Event rows of each chain
//
// Writes are idempotent within a run: UNIQUE(run, chain_token, seq) plus
// ON CONFLICT DO NOTHING make writing the same trace twice a no-op, and
// WriteTrace reports how many rows it actually inserted.
//
// Queries order by seq ASC, id ASC so reads are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
