// Package summary generates formula-only aggregate sheets.
//
// No aggregate is ever computed here: every generated cell is formula
// text over a live range of a fact or match sheet, or a literal copied
// from configuration. Range ends are recomputed from current row counts
// on every call, so formulas stay valid as sheets grow.
package summary

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/sheetrelay/internal/formula"
	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/match"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// FirstDataRow is the 1-based row where data starts, below the header.
const FirstDataRow = 2

// RefError replaces placeholders that name an unknown sheet or column.
const RefError = "#REF!"

var placeholder = regexp.MustCompile(`\{\{\s*([^{}.\s]+)\.([^{}\s]+)\s*\}\}`)

// Options filter which summary definitions rebuild.
type Options struct {
	// DirtySources is the set of sheets changed in this pass (edited fact
	// sheet plus rebuilt match sheets). Nil means rebuild everything.
	DirtySources map[string]bool
}

// Selected reports whether def rebuilds under opts. Definitions without
// sources always rebuild.
func Selected(def ir.SummarySheetDef, opts Options) bool {
	if opts.DirtySources == nil || len(def.SourceSheets) == 0 {
		return true
	}
	for _, src := range def.SourceSheets {
		if opts.DirtySources[src] {
			return true
		}
	}
	return false
}

// Build generates rows for every selected summary sheet of module. tables
// holds the current fact and match tables keyed by sheet id.
func Build(module ir.ModuleDef, tables map[string]*sheet.Table, opts Options) map[string][]sheet.Row {
	classes := make(map[string]string, len(module.MatchSheets))
	for _, ms := range module.MatchSheets {
		classes[ms.SheetID] = ms.MatchClass
	}

	out := make(map[string][]sheet.Row)
	for _, def := range module.SummarySheets {
		if !Selected(def, opts) {
			continue
		}
		if len(def.FormulaRows) > 0 {
			out[def.SheetID] = literalRows(def.FormulaRows, tables)
			continue
		}
		var rows []sheet.Row
		for _, src := range def.SourceSheets {
			t, ok := tables[src]
			if !ok || t == nil {
				continue
			}
			class, isMatch := classes[src]
			rows = append(rows, generatedRows(t, class, isMatch)...)
		}
		if rows == nil {
			rows = []sheet.Row{}
		}
		out[def.SheetID] = rows
	}
	return out
}

// End returns the last data row (1-based) of a range over t.
func End(t *sheet.Table) int {
	return max(t.RowCount(), FirstDataRow)
}

func literalRows(spec [][]string, tables map[string]*sheet.Table) []sheet.Row {
	rows := make([]sheet.Row, 0, len(spec))
	for _, in := range spec {
		row := make(sheet.Row, len(in))
		for i, cell := range in {
			if text, ok := strings.CutPrefix(cell, "="); ok {
				row[i] = sheet.F(Expand(text, tables))
				continue
			}
			row[i] = sheet.V(literal(cell))
		}
		rows = append(rows, row)
	}
	return rows
}

// Expand replaces {{sheet.column}} with the live range of that column.
func Expand(text string, tables map[string]*sheet.Table) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		t, ok := tables[parts[1]]
		if !ok || t == nil || t.Schema == nil {
			return RefError
		}
		col, ok := t.Schema.Index(parts[2])
		if !ok {
			return RefError
		}
		return formula.RangeRef(parts[1], col, FirstDataRow, End(t))
	})
}

func literal(s string) ir.Value {
	if s == "" {
		return ir.Empty()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if v := ir.NewNumber(f); !v.IsEmpty() {
			return v
		}
	}
	return ir.NewString(s)
}

func generatedRows(t *sheet.Table, matchClass string, isMatch bool) []sheet.Row {
	end := End(t)
	label := func(parts ...string) sheet.Entry {
		return sheet.V(ir.NewString(strings.Join(append([]string{t.ID}, parts...), ".")))
	}
	rng := func(col int) string { return formula.RangeRef(t.ID, col, FirstDataRow, end) }

	rows := []sheet.Row{{label("rows"), sheet.F(fmt.Sprintf("COUNTA(%s)", rng(0)))}}

	for i, col := range t.Schema.Columns() {
		if col.Type == ir.TypeNumber || col.Type == ir.TypeInteger {
			rows = append(rows, sheet.Row{label(col.ID, "sum"), sheet.F(fmt.Sprintf("SUM(%s)", rng(i)))})
		}
	}

	if statusCol, ok := t.Schema.Index("status"); ok && isMatch {
		for _, s := range match.Statuses(matchClass) {
			rows = append(rows, sheet.Row{label("status", s), sheet.F(fmt.Sprintf("COUNTIF(%s,%q)", rng(statusCol), s))})
		}
	}
	return rows
}
