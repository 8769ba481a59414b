// Package match derives reconciliation rows by joining fact tables.
//
// Every builder is a pure function of its input tables: the same fact
// state always produces the same rows in the same order. A definition
// whose source sheets cannot be resolved yields no rows rather than an
// error.
package match

import (
	"math"
	"slices"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// Match statuses.
const (
	StatusMatch           = "MATCH"
	StatusQtyException    = "QTY_EXCEPTION"
	StatusPriceException  = "PRICE_EXCEPTION"
	StatusAmountException = "AMOUNT_EXCEPTION"
	StatusOverpay         = "OVERPAY"
	StatusPartial         = "PARTIAL"
	StatusUnmatched       = "UNMATCHED"
)

// Confidence levels reported on three-way rows.
const (
	ConfidenceNone    = 0.0
	ConfidencePartial = 0.5
	ConfidenceFull    = 1.0
)

// AmountTolerance is the largest variance still treated as a match.
const AmountTolerance = 0.01

// Statuses returns the statuses a match class can emit, in display order.
func Statuses(class string) []string {
	switch class {
	case ir.MatchThreeWay:
		return []string{StatusMatch, StatusQtyException, StatusPriceException, StatusUnmatched}
	case ir.MatchInvoiceGL:
		return []string{StatusMatch, StatusAmountException, StatusUnmatched}
	case ir.MatchInvoicePayment:
		return []string{StatusMatch, StatusOverpay, StatusPartial, StatusUnmatched}
	default:
		return []string{StatusMatch, StatusQtyException, StatusUnmatched}
	}
}

// Options filter which match definitions rebuild.
type Options struct {
	// DirtySources is the set of sheets changed in this pass. Nil means
	// no dirty filter: every definition rebuilds.
	DirtySources map[string]bool

	// MatchSheetIDs, when non-empty, restricts the rebuild to these ids.
	MatchSheetIDs []string
}

// Selected reports whether def rebuilds under opts.
func Selected(def ir.MatchSheetDef, opts Options) bool {
	if len(opts.MatchSheetIDs) > 0 && !slices.Contains(opts.MatchSheetIDs, def.SheetID) {
		return false
	}
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

// Build rebuilds every selected match sheet of module from facts (fact
// tables keyed by sheet id). The result maps match sheet id to its data
// rows, projected onto the sheet's declared columns.
func Build(facts map[string]*sheet.Table, module ir.ModuleDef, opts Options) map[string][]sheet.Row {
	out := make(map[string][]sheet.Row)
	for _, def := range module.MatchSheets {
		if !Selected(def, opts) {
			continue
		}
		schema := sheet.NewSchema(def.Columns)
		records := buildRecords(facts, def)
		rows := make([]sheet.Row, 0, len(records))
		for _, r := range records {
			rows = append(rows, schema.Project(r))
		}
		out[def.SheetID] = rows
	}
	return out
}

// record is one match row keyed by conventional column id.
type record map[string]ir.Value

func buildRecords(facts map[string]*sheet.Table, def ir.MatchSheetDef) []record {
	switch def.MatchClass {
	case ir.MatchThreeWay:
		tables, ok := resolve(facts, def.SourceSheets, 3)
		if !ok {
			return nil
		}
		key := def.JoinKey
		if key == "" {
			key = "po_line_id"
		}
		return threeWay(tables[0], tables[1], tables[2], key)
	case ir.MatchInvoiceGL, ir.MatchInvoicePayment:
		tables, ok := resolve(facts, def.SourceSheets, 2)
		if !ok {
			return nil
		}
		return byInvoice(tables[0], tables[1], def.MatchClass)
	case "", ir.MatchGeneric:
		tables, ok := resolve(facts, def.SourceSheets, 2)
		if !ok || def.JoinKey == "" || def.Compare == nil {
			return nil
		}
		return generic(tables[0], tables[1], def.JoinKey, *def.Compare)
	default:
		return nil
	}
}

func resolve(facts map[string]*sheet.Table, sources []string, want int) ([]*sheet.Table, bool) {
	if len(sources) != want {
		return nil, false
	}
	tables := make([]*sheet.Table, want)
	for i, id := range sources {
		t, ok := facts[id]
		if !ok || t == nil {
			return nil, false
		}
		tables[i] = t
	}
	return tables, true
}

func num(f float64) ir.Value { return ir.NewNumber(f) }

func text(s string) ir.Value {
	if s == "" {
		return ir.Empty()
	}
	return ir.NewString(s)
}

// round rounds to n decimals, clearing negative zero.
func round(f float64, n int) float64 {
	p := math.Pow(10, float64(n))
	r := math.Round(f*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func round2(f float64) float64 { return round(f, 2) }
