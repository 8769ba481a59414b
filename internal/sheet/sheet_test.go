package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/ir"
)

func testSchema() *Schema {
	return NewSchema([]ir.ColumnDef{
		{ID: "po_line_id", Label: "PO Line", Required: true},
		{ID: "qty", Label: "Qty", Type: ir.TypeNumber},
		{ID: "note"},
	})
}

func TestNew_HeaderRow(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())

	assert.Equal(t, 1, s.RowCount())
	assert.Equal(t, 3, s.ColCount())

	c, ok := s.CellAt("A1")
	require.True(t, ok)
	assert.Equal(t, "PO Line", c.Display)

	c, ok = s.CellAt("C1")
	require.True(t, ok)
	assert.Equal(t, "note", c.Display, "label falls back to column id")
}

func TestAppendRow_ProvenanceOnFirstCellOnly(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())
	prov := &Provenance{SourceSystem: "erp", SourceID: "r-1", IngestedAt: time.Unix(0, 0).UTC(), RouteID: "po"}

	row, err := s.AppendRow([]ir.Value{ir.NewString("L1"), ir.NewNumber(10), ir.Empty()}, prov)
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, s.RowCount())

	first, ok := s.CellAt("A2")
	require.True(t, ok)
	require.NotNil(t, first.Provenance)
	assert.Equal(t, "erp", first.Provenance.SourceSystem)

	second, ok := s.CellAt("B2")
	require.True(t, ok)
	assert.Nil(t, second.Provenance)
	assert.Equal(t, "10", second.Display)
}

func TestAppendRow_RowCountMonotonic(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())
	prev := s.RowCount()
	for i := 0; i < 5; i++ {
		_, err := s.AppendRow([]ir.Value{ir.NewString("L"), ir.NewNumber(float64(i)), ir.Empty()}, nil)
		require.NoError(t, err)
		assert.Greater(t, s.RowCount(), prev)
		prev = s.RowCount()
	}
}

func TestAppendRow_Rejections(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())
	_, err := s.AppendRow([]ir.Value{ir.NewString("L1")}, nil)
	assert.Error(t, err, "width must match schema")

	m := New("three_way", KindMatch, testSchema())
	_, err = m.AppendRow([]ir.Value{ir.Empty(), ir.Empty(), ir.Empty()}, nil)
	assert.Error(t, err, "derived sheets are never appended to")
}

func TestAppendRowDeferred_SingleRebuild(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())
	before := s.IndexBuilds()

	for i := 0; i < 10; i++ {
		_, err := s.AppendRowDeferred([]ir.Value{ir.NewString("L"), ir.NewNumber(1), ir.Empty()}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, before, s.IndexBuilds(), "no rebuild while deferred")

	s.RebuildIndex()
	assert.Equal(t, before+1, s.IndexBuilds())

	c, ok := s.CellAt("A11")
	require.True(t, ok)
	assert.Equal(t, "L", c.Display)
}

func TestReplace_RegeneratesWholeSheet(t *testing.T) {
	s := New("summary", KindSummary, testSchema())
	s.Replace([]Row{
		{V(ir.NewString("a")), F("SUM(po!B2:B3)")},
		{V(ir.NewString("b")), V(ir.NewNumber(2)), V(ir.NewString("x")), V(ir.NewString("dropped"))},
	})
	assert.Equal(t, 3, s.RowCount())

	c, ok := s.CellAt("B2")
	require.True(t, ok)
	assert.True(t, c.IsFormula())
	assert.Equal(t, "=SUM(po!B2:B3)", c.Display)

	c, ok = s.CellAt("C2")
	require.True(t, ok)
	assert.True(t, c.Value.IsEmpty(), "short rows are padded")

	_, ok = s.CellAt("D3")
	assert.False(t, ok, "long rows are truncated")

	s.Replace([]Row{{V(ir.NewString("only"))}})
	assert.Equal(t, 2, s.RowCount())
	_, ok = s.CellAt("A3")
	assert.False(t, ok, "previous rows are cleared")
}

func TestRecords_TypedAccess(t *testing.T) {
	s := New("po_lines", KindFact, testSchema())
	_, err := s.AppendRow([]ir.Value{ir.NewString("L1"), ir.NewNumber(4.5), ir.NewString("n/a")}, nil)
	require.NoError(t, err)

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "L1", recs[0].Text("po_line_id"))
	assert.Equal(t, 4.5, recs[0].Number("qty"))
	assert.Equal(t, 0.0, recs[0].Number("note"))
	assert.True(t, recs[0].Get("missing").IsEmpty())

	tbl := s.Table()
	assert.Equal(t, 2, tbl.RowCount())
}

func TestCanonicalRows_StableAcrossRebuilds(t *testing.T) {
	rows := []Row{{V(ir.NewString("a")), F("COUNTA(x!A2:A2)")}}
	a := New("m", KindMatch, testSchema())
	b := New("m", KindMatch, testSchema())
	a.Replace(rows)
	b.Replace(rows)
	b.Replace(rows)

	ca, err := ir.MarshalCanonical(toAny(a.CanonicalRows()))
	require.NoError(t, err)
	cb, err := ir.MarshalCanonical(toAny(b.CanonicalRows()))
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
}

func TestSchema_Project(t *testing.T) {
	sc := testSchema()
	row := sc.Project(map[string]ir.Value{"qty": ir.NewNumber(3), "other": ir.NewString("x")})
	require.Len(t, row, 3)
	assert.True(t, row[0].Value.IsEmpty())
	assert.Equal(t, "3", row[1].Value.Text())
}

func toAny(rows [][]any) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
