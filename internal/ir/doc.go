// Package ir provides the canonical representation types for sheetrelay.
//
// This package contains definitions and value types only. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Cell values are tagged scalars (Value); numbers are always finite
//   - Definitions (modules, routes) are plain data decoded from YAML or CUE
//   - Content hashes use canonical JSON with domain separation (hash.go)
//   - KPI snapshots are ordered by a logical seq, never by wall-clock time
package ir
