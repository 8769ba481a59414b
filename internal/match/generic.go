package match

import (
	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// generic joins left to right on key. The first right-hand row per key
// wins; later duplicates are ignored. Status compares the configured
// quantity-like column pair.
func generic(left, right *sheet.Table, key string, cmp ir.ComparePair) []record {
	first := firstByKey(right, key)

	out := make([]record, 0, len(left.Rows))
	for _, l := range left.Rows {
		rec := make(record)
		copyColumns(rec, l)

		k := l.Text(key)
		ri, ok := first[k]
		if k == "" || !ok {
			rec["status"] = text(StatusUnmatched)
			out = append(out, rec)
			continue
		}

		r := right.Rows[ri]
		copyColumns(rec, r)

		lq := l.Number(cmp.Left)
		rq := r.Number(cmp.Right)
		variance := round(rq-lq, 4)
		rec["left_qty"] = num(lq)
		rec["right_qty"] = num(rq)
		rec["variance"] = num(variance)
		if variance == 0 {
			rec["status"] = text(StatusMatch)
		} else {
			rec["status"] = text(StatusQtyException)
		}
		out = append(out, rec)
	}
	return out
}

// copyColumns adds a row's columns to rec without overwriting.
func copyColumns(rec record, row sheet.Record) {
	if row.Schema() == nil {
		return
	}
	values := row.Values()
	for i, col := range row.Schema().Columns() {
		if _, taken := rec[col.ID]; taken || i >= len(values) {
			continue
		}
		rec[col.ID] = values[i]
	}
}

// firstByKey indexes the first row per non-empty key value.
func firstByKey(t *sheet.Table, key string) map[string]int {
	idx := make(map[string]int, len(t.Rows))
	for i, row := range t.Rows {
		k := row.Text(key)
		if k == "" {
			continue
		}
		if _, seen := idx[k]; !seen {
			idx[k] = i
		}
	}
	return idx
}
