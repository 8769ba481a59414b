package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

func factRow(sheetID string, idx int, seq int64, values ...ir.Value) FactRow {
	return FactRow{
		SheetID: sheetID,
		RowIdx:  idx,
		Seq:     seq,
		Values:  values,
		Provenance: sheet.Provenance{
			SourceSystem: "erp",
			SourceID:     "src-1",
			IngestedAt:   time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC),
			RouteID:      "erp.po",
		},
	}
}

func TestAppendFactRow_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	in := factRow("po_lines", 1, 1, ir.NewString("L1"), ir.NewNumber(10), ir.Empty(), ir.NewBool(true))
	require.NoError(t, s.AppendFactRow(ctx, in))

	rows, err := s.ReadSheetRows(ctx, "po_lines")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	got := rows[0]
	assert.Equal(t, in.SheetID, got.SheetID)
	assert.Equal(t, in.RowIdx, got.RowIdx)
	assert.Equal(t, in.Seq, got.Seq)
	require.Len(t, got.Values, 4)
	for i := range in.Values {
		assert.True(t, in.Values[i].Equal(got.Values[i]), "value %d", i)
	}
	assert.Equal(t, in.Provenance.SourceSystem, got.Provenance.SourceSystem)
	assert.Equal(t, in.Provenance.SourceID, got.Provenance.SourceID)
	assert.Equal(t, in.Provenance.RouteID, got.Provenance.RouteID)
	assert.True(t, in.Provenance.IngestedAt.Equal(got.Provenance.IngestedAt))
}

func TestAppendFactRow_StoresTextAsIngested(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	decomposed := "Cafe\u0301-1"
	require.NoError(t, s.AppendFactRow(ctx, factRow("po_lines", 1, 1, ir.NewString(decomposed), ir.NewString("a<b&c"))))

	rows, err := s.ReadSheetRows(ctx, "po_lines")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, decomposed, rows[0].Values[0].Str(), "no Unicode normalization on the way to disk")
	assert.Equal(t, "a<b&c", rows[0].Values[1].Str())
}

func TestAppendFactRow_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	require.NoError(t, s.AppendFactRow(ctx, factRow("po_lines", 1, 1, ir.NewString("first"))))
	require.NoError(t, s.AppendFactRow(ctx, factRow("po_lines", 1, 2, ir.NewString("second"))))

	rows, err := s.ReadSheetRows(ctx, "po_lines")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Values[0].Text(), "stored rows are never overwritten")
	assert.Equal(t, int64(1), rows[0].Seq)
}

func TestAppendFactRows_Batch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	batch := []FactRow{
		factRow("receipts", 1, 3, ir.NewString("R1")),
		factRow("receipts", 2, 4, ir.NewString("R2")),
		factRow("receipts", 3, 5, ir.NewString("R3")),
	}
	require.NoError(t, s.AppendFactRows(ctx, batch))
	require.NoError(t, s.AppendFactRows(ctx, nil))

	n, err := s.CountFactRows(ctx, "receipts")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAppendFactRow_ZeroTimestamp(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	row := factRow("notes", 1, 1, ir.NewString("x"))
	row.Provenance.IngestedAt = time.Time{}
	require.NoError(t, s.AppendFactRow(ctx, row))

	rows, err := s.ReadSheetRows(ctx, "notes")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Provenance.IngestedAt.IsZero())
}

func snapshot(branch string, seq int64) ir.MetricSnapshot {
	return ir.MetricSnapshot{
		Seq:          seq,
		BranchID:     branch,
		TriggerSheet: "po_lines",
		Metrics: map[string]ir.MetricValue{
			"po_line_count": {Value: ir.Empty(), SourceCell: "procurement_summary!B2", Formula: "COUNTA(po_lines!A2:A3)"},
			"target":        {Value: ir.NewNumber(0.95), Unit: "ratio", SourceCell: "kpi_board!B3"},
		},
	}
}

func TestAppendSnapshot_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	in := snapshot("branch-east", 7)
	require.NoError(t, s.AppendSnapshot(ctx, in))

	got, err := s.ReadSnapshots(ctx, "branch-east")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, in.Seq, got[0].Seq)
	assert.Equal(t, in.TriggerSheet, got[0].TriggerSheet)
	require.Len(t, got[0].Metrics, 2)

	count := got[0].Metrics["po_line_count"]
	assert.True(t, count.Value.IsEmpty())
	assert.Equal(t, "COUNTA(po_lines!A2:A3)", count.Formula)

	target := got[0].Metrics["target"]
	f, ok := target.Value.Float()
	require.True(t, ok)
	assert.Equal(t, 0.95, f)
	assert.Equal(t, "ratio", target.Unit)
	assert.Equal(t, "kpi_board!B3", target.SourceCell)
}

func TestAppendSnapshot_Immutable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	first := snapshot("branch-east", 1)
	require.NoError(t, s.AppendSnapshot(ctx, first))

	second := snapshot("branch-east", 1)
	second.TriggerSheet = "receipts"
	require.NoError(t, s.AppendSnapshot(ctx, second))

	got, err := s.ReadSnapshots(ctx, "branch-east")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "po_lines", got[0].TriggerSheet)
}
