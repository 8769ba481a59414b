package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
	"github.com/roach88/sheetrelay/internal/testutil"
)

func procurement(t *testing.T) ir.ModuleDef {
	t.Helper()
	mod, ok := testutil.ProcurementRegistry(t).Module("procurement")
	require.True(t, ok)
	return mod
}

// tables returns empty fact and match tables, with extra data rows on po_lines.
func tables(t *testing.T, mod ir.ModuleDef, poRows int) map[string]*sheet.Table {
	t.Helper()
	out := make(map[string]*sheet.Table)
	for _, fs := range mod.FactSheets {
		schema := sheet.NewSchema(fs.Columns)
		var rows []sheet.Row
		if fs.SheetID == "po_lines" {
			for i := 0; i < poRows; i++ {
				rows = append(rows, sheet.Row{sheet.V(ir.NewString("L"))})
			}
		}
		out[fs.SheetID] = sheet.TableFromRows(fs.SheetID, sheet.KindFact, schema, rows)
	}
	for _, ms := range mod.MatchSheets {
		out[ms.SheetID] = sheet.TableFromRows(ms.SheetID, sheet.KindMatch, sheet.NewSchema(ms.Columns), nil)
	}
	return out
}

func formulas(rows []sheet.Row) map[string]string {
	out := make(map[string]string)
	for _, r := range rows {
		out[r[0].Value.Text()] = r[1].Formula
	}
	return out
}

func TestBuild_GeneratedFormulas(t *testing.T) {
	mod := procurement(t)
	out := Build(mod, tables(t, mod, 3), Options{})

	rows, ok := out["procurement_summary"]
	require.True(t, ok)
	f := formulas(rows)

	assert.Equal(t, "COUNTA(po_lines!A2:A4)", f["po_lines.rows"])
	assert.Equal(t, "SUM(po_lines!D2:D4)", f["po_lines.qty_ordered.sum"])
	assert.Equal(t, "SUM(po_lines!E2:E4)", f["po_lines.unit_price.sum"])
	assert.Equal(t, "COUNTA(three_way!A2:A2)", f["three_way.rows"], "empty sheets keep a valid range")
	assert.Equal(t, `COUNTIF(three_way!K2:K2,"MATCH")`, f["three_way.status.MATCH"])
	assert.Contains(t, f, "three_way.status.QTY_EXCEPTION")

	assert.Equal(t, "po_lines.rows", rows[0][0].Value.Text(), "first row counts the first source")
}

func TestBuild_OnlyFormulaText(t *testing.T) {
	mod := procurement(t)
	out := Build(mod, tables(t, mod, 2), Options{})
	for _, r := range out["procurement_summary"] {
		require.Len(t, r, 2)
		assert.Equal(t, ir.KindString, r[0].Value.Kind())
		assert.NotEmpty(t, r[1].Formula, "aggregate cells are formula text")
		assert.True(t, r[1].Value.IsEmpty())
	}
}

func TestBuild_RangeEndTracksRowCount(t *testing.T) {
	mod := procurement(t)
	small := formulas(Build(mod, tables(t, mod, 1), Options{})["procurement_summary"])
	large := formulas(Build(mod, tables(t, mod, 10), Options{})["procurement_summary"])

	assert.Equal(t, "COUNTA(po_lines!A2:A2)", small["po_lines.rows"])
	assert.Equal(t, "COUNTA(po_lines!A2:A11)", large["po_lines.rows"])
}

func TestBuild_LiteralFormulaRows(t *testing.T) {
	mod := procurement(t)
	out := Build(mod, tables(t, mod, 0), Options{})

	rows := out["kpi_board"]
	require.Len(t, rows, 2)
	assert.Equal(t, "match_rate", rows[0][0].Value.Text())
	assert.Equal(t,
		`COUNTIF(three_way!K2:K2,"MATCH")/MAX(1,COUNTA(three_way!A2:A2))`,
		rows[0][1].Formula)

	assert.Equal(t, ir.KindNumber, rows[1][1].Value.Kind(), "numeric literals are kept as numbers")
	assert.Equal(t, "0.95", rows[1][1].Value.Text())
}

func TestExpand_UnknownReferences(t *testing.T) {
	mod := procurement(t)
	tb := tables(t, mod, 0)
	assert.Equal(t, "SUM(#REF!)", Expand("SUM({{ghost.qty}})", tb))
	assert.Equal(t, "SUM(#REF!)", Expand("SUM({{po_lines.nope}})", tb))
	assert.Equal(t, "SUM(po_lines!D2:D2)", Expand("SUM({{ po_lines.qty_ordered }})", tb))
}

func TestSelected(t *testing.T) {
	mod := procurement(t)

	out := Build(mod, tables(t, mod, 0), Options{DirtySources: map[string]bool{"vendor_notes": true}})
	assert.NotContains(t, out, "procurement_summary")
	assert.Contains(t, out, "kpi_board", "summaries without sources always rebuild")

	out = Build(mod, tables(t, mod, 0), Options{DirtySources: map[string]bool{"three_way": true}})
	assert.Contains(t, out, "procurement_summary")
}

func TestBuild_UnresolvableSourcesSkipped(t *testing.T) {
	mod := procurement(t)
	tb := tables(t, mod, 0)
	delete(tb, "three_way")
	f := formulas(Build(mod, tb, Options{})["procurement_summary"])
	assert.Contains(t, f, "po_lines.rows")
	assert.NotContains(t, f, "three_way.rows")
}
