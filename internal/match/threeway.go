package match

import (
	"github.com/roach88/sheetrelay/internal/sheet"
)

// threeWay reconciles purchase-order lines against receipts and invoices.
//
// PO lines are the anchor. Each anchor consumes the next unused receipt and
// invoice sharing its key, in input order; once a key's rows are used up a
// later anchor with the same key sees no counterpart. Invoices left
// unconsumed after the anchor pass are appended as UNMATCHED in input
// order, so every invoice line appears exactly once.
func threeWay(po, receipts, invoices *sheet.Table, key string) []record {
	receiptQueue := queueByKey(receipts, key)
	invoiceQueue := queueByKey(invoices, key)
	consumed := make(map[int]bool, len(invoices.Rows))

	out := make([]record, 0, len(po.Rows)+len(invoices.Rows))
	for _, line := range po.Rows {
		k := line.Text(key)
		ordered := line.Number("qty_ordered")
		poPrice := line.Number("unit_price")

		rec := record{
			"po_line_id":  text(k),
			"po_id":       line.Get("po_id"),
			"item":        line.Get("item"),
			"qty_ordered": num(ordered),
			"po_price":    num(poPrice),
		}
		if key != "po_line_id" {
			rec[key] = text(k)
		}

		ri, hasReceipt := -1, false
		ii, hasInvoice := -1, false
		if k != "" {
			ri, hasReceipt = receiptQueue.take(k)
			ii, hasInvoice = invoiceQueue.take(k)
		}

		var received, invoiced, invPrice float64
		if hasReceipt {
			r := receipts.Rows[ri]
			received = r.Number("qty_received")
			rec["qty_received"] = num(received)
			rec["receipt_id"] = r.Get("receipt_id")
		}
		if hasInvoice {
			consumed[ii] = true
			inv := invoices.Rows[ii]
			invoiced = inv.Number("qty_invoiced")
			invPrice = inv.Number("unit_price")
			rec["qty_invoiced"] = num(invoiced)
			rec["invoice_price"] = num(invPrice)
			rec["invoice_id"] = inv.Get("invoice_id")
		}

		switch {
		case !hasReceipt && !hasInvoice:
			rec.classify(StatusUnmatched, ConfidenceNone)
		case hasReceipt != hasInvoice:
			rec.classify(StatusUnmatched, ConfidencePartial)
		default:
			qtyVar := round(received-ordered, 4)
			if qtyVar == 0 {
				qtyVar = round(invoiced-received, 4)
			}
			priceVar := round(invPrice-poPrice, 4)
			rec["qty_variance"] = num(qtyVar)
			rec["price_variance"] = num(priceVar)
			switch {
			case qtyVar != 0:
				rec.classify(StatusQtyException, ConfidenceFull)
			case priceVar != 0:
				rec.classify(StatusPriceException, ConfidenceFull)
			default:
				rec.classify(StatusMatch, ConfidenceFull)
			}
		}
		out = append(out, rec)
	}

	for i, inv := range invoices.Rows {
		if consumed[i] {
			continue
		}
		rec := record{
			"po_line_id":    inv.Get(key),
			"qty_invoiced":  num(inv.Number("qty_invoiced")),
			"invoice_price": num(inv.Number("unit_price")),
			"invoice_id":    inv.Get("invoice_id"),
		}
		if key != "po_line_id" {
			rec[key] = inv.Get(key)
		}
		rec.classify(StatusUnmatched, ConfidenceNone)
		out = append(out, rec)
	}
	return out
}

func (r record) classify(status string, confidence float64) {
	r["status"] = text(status)
	r["confidence"] = num(confidence)
}

// keyQueue holds, per non-empty key value, the row indices not yet
// consumed, in input order.
type keyQueue map[string][]int

func queueByKey(t *sheet.Table, key string) keyQueue {
	q := make(keyQueue, len(t.Rows))
	for i, row := range t.Rows {
		if k := row.Text(key); k != "" {
			q[k] = append(q[k], i)
		}
	}
	return q
}

// take pops the next unused row index for k.
func (q keyQueue) take(k string) (int, bool) {
	idx := q[k]
	if len(idx) == 0 {
		return -1, false
	}
	q[k] = idx[1:]
	return idx[0], true
}
