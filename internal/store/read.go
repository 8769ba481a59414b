package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/sheetrelay/internal/ir"
)

// ReadFactRows returns every fact row in append order.
// Ordering: seq ASC, then sheet_id and row_idx for rows sharing a seq.
func (s *Store) ReadFactRows(ctx context.Context) ([]FactRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sheet_id, row_idx, seq, cells, source_system, source_id, ingested_at, route_id
		FROM fact_rows
		ORDER BY seq ASC, sheet_id COLLATE BINARY ASC, row_idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read fact rows: %w", err)
	}
	defer rows.Close()
	return scanFactRows(rows)
}

// ReadSheetRows returns the rows of one fact sheet ordered by row index.
func (s *Store) ReadSheetRows(ctx context.Context, sheetID string) ([]FactRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sheet_id, row_idx, seq, cells, source_system, source_id, ingested_at, route_id
		FROM fact_rows
		WHERE sheet_id = ?
		ORDER BY row_idx ASC
	`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	defer rows.Close()
	return scanFactRows(rows)
}

// CountFactRows returns the number of stored rows for a sheet.
func (s *Store) CountFactRows(ctx context.Context, sheetID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fact_rows WHERE sheet_id = ?`, sheetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count fact rows: %w", err)
	}
	return n, nil
}

// ReadSnapshots returns a branch's KPI history ordered by seq.
func (s *Store) ReadSnapshots(ctx context.Context, branchID string) ([]ir.MetricSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch_id, seq, trigger_sheet, metrics
		FROM kpi_snapshots
		WHERE branch_id = ?
		ORDER BY seq ASC
	`, branchID)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// ReadAllSnapshots returns every KPI snapshot ordered by seq, then branch.
func (s *Store) ReadAllSnapshots(ctx context.Context) ([]ir.MetricSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch_id, seq, trigger_sheet, metrics
		FROM kpi_snapshots
		ORDER BY seq ASC, branch_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// MaxSeq returns the highest seq across both tables, or 0 when empty.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM fact_rows
			UNION ALL
			SELECT seq FROM kpi_snapshots
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func scanFactRows(rows *sql.Rows) ([]FactRow, error) {
	var out []FactRow
	for rows.Next() {
		var (
			r          FactRow
			cells      string
			ingestedAt string
		)
		if err := rows.Scan(
			&r.SheetID,
			&r.RowIdx,
			&r.Seq,
			&cells,
			&r.Provenance.SourceSystem,
			&r.Provenance.SourceID,
			&ingestedAt,
			&r.Provenance.RouteID,
		); err != nil {
			return nil, fmt.Errorf("scan fact row: %w", err)
		}
		values, err := unmarshalCells(cells)
		if err != nil {
			return nil, fmt.Errorf("scan fact row %s/%d: %w", r.SheetID, r.RowIdx, err)
		}
		r.Values = values
		if r.Provenance.IngestedAt, err = parseTime(ingestedAt); err != nil {
			return nil, fmt.Errorf("scan fact row %s/%d: %w", r.SheetID, r.RowIdx, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fact rows: %w", err)
	}
	return out, nil
}

func scanSnapshots(rows *sql.Rows) ([]ir.MetricSnapshot, error) {
	var out []ir.MetricSnapshot
	for rows.Next() {
		var (
			snap    ir.MetricSnapshot
			metrics string
		)
		if err := rows.Scan(&snap.BranchID, &snap.Seq, &snap.TriggerSheet, &metrics); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		m, err := unmarshalMetrics(metrics)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot %s/%d: %w", snap.BranchID, snap.Seq, err)
		}
		snap.Metrics = m
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}
