// Package engine is the recomputation orchestrator.
//
// The engine owns every fact, match and summary sheet declared by the
// registry and is their single writer. One mutex serializes each
// ingest → recompute sequence so cascades never interleave.
//
// Cascade for an edited fact sheet:
//  1. gather the module's fact tables
//  2. rebuild match sheets whose sources include the edited sheet, or
//     that declare none, replacing each sheet whole
//  3. rebuild summaries whose sources intersect the edited sheet plus
//     the rebuilt match sheets, or that declare none
//  4. if the branch declares KPI bindings, read each bound cell and
//     append one immutable snapshot
//
// Fact rows and snapshots are stamped with seq from a logical Clock.
// NEVER use wall-clock timestamps for ordering.
//
// With a store attached, rows and snapshots are persisted before they
// become visible in memory, and Restore replays the log at startup.
package engine
