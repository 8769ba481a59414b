package store

import (
	"context"
	"fmt"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// FactRow is one persisted fact row. RowIdx is the 1-based sheet row (the
// header is row 0) and Seq the engine's logical clock at append time.
type FactRow struct {
	SheetID    string
	RowIdx     int
	Seq        int64
	Values     []ir.Value
	Provenance sheet.Provenance
}

// AppendFactRow inserts a fact row.
// Uses ON CONFLICT DO NOTHING for idempotency - a row already stored at
// (sheet_id, row_idx) is left untouched.
func (s *Store) AppendFactRow(ctx context.Context, row FactRow) error {
	cells, err := marshalCells(row.Values)
	if err != nil {
		return fmt.Errorf("append fact row: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fact_rows
		(sheet_id, row_idx, seq, cells, source_system, source_id, ingested_at, route_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sheet_id, row_idx) DO NOTHING
	`,
		row.SheetID,
		row.RowIdx,
		row.Seq,
		cells,
		row.Provenance.SourceSystem,
		row.Provenance.SourceID,
		formatTime(row.Provenance.IngestedAt),
		row.Provenance.RouteID,
	)
	if err != nil {
		return fmt.Errorf("append fact row: %w", err)
	}
	return nil
}

// AppendFactRows inserts rows in a single transaction.
func (s *Store) AppendFactRows(ctx context.Context, rows []FactRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append fact rows: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fact_rows
		(sheet_id, row_idx, seq, cells, source_system, source_id, ingested_at, route_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sheet_id, row_idx) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("append fact rows: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		cells, err := marshalCells(row.Values)
		if err != nil {
			return fmt.Errorf("append fact rows: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			row.SheetID,
			row.RowIdx,
			row.Seq,
			cells,
			row.Provenance.SourceSystem,
			row.Provenance.SourceID,
			formatTime(row.Provenance.IngestedAt),
			row.Provenance.RouteID,
		); err != nil {
			return fmt.Errorf("append fact rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append fact rows: %w", err)
	}
	return nil
}

// AppendSnapshot inserts a KPI snapshot. Snapshots are immutable: a second
// write for the same (branch_id, seq) is ignored.
func (s *Store) AppendSnapshot(ctx context.Context, snap ir.MetricSnapshot) error {
	metrics, err := marshalMetrics(snap)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kpi_snapshots (branch_id, seq, trigger_sheet, metrics)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(branch_id, seq) DO NOTHING
	`, snap.BranchID, snap.Seq, snap.TriggerSheet, metrics)
	if err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}
