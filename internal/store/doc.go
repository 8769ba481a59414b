// Package store provides SQLite-backed durable storage for ingested fact
// rows and KPI snapshots.
//
// The store is an append-only log:
//   - fact_rows: one row per ingested fact row, keyed by (sheet_id, row_idx)
//   - kpi_snapshots: one row per snapshot, keyed by (branch_id, seq)
//
// Writes use ON CONFLICT DO NOTHING, so re-writing a row that already
// exists is a no-op. Rows are never updated or deleted.
//
// Reads order by seq (the engine's logical clock), never by wall time, so
// replaying the log rebuilds the same in-memory state.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON
//
// The schema is managed by goose migrations embedded from migrations/.
package store
