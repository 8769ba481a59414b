package match

import (
	"math"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

type invoiceGroup struct {
	id      string
	amount  float64
	counter float64
	entries int
}

// byInvoice groups invoice lines and their counter-entries (GL postings
// or payments) by invoice_id, in first-appearance order of the invoice,
// summing amounts rounded to two decimals.
func byInvoice(invoices, counter *sheet.Table, class string) []record {
	var order []string
	groups := make(map[string]*invoiceGroup)

	for _, inv := range invoices.Rows {
		id := inv.Text("invoice_id")
		if id == "" {
			continue
		}
		g, ok := groups[id]
		if !ok {
			g = &invoiceGroup{id: id}
			groups[id] = g
			order = append(order, id)
		}
		g.amount += round2(invoiceAmount(inv))
	}

	for _, c := range counter.Rows {
		g, ok := groups[c.Text("invoice_id")]
		if !ok {
			continue
		}
		g.counter += round2(c.Number("amount"))
		g.entries++
	}

	counterCol := "gl_amount"
	if class == ir.MatchInvoicePayment {
		counterCol = "paid_amount"
	}

	out := make([]record, 0, len(order))
	for _, id := range order {
		g := groups[id]
		amount := round2(g.amount)
		rec := record{
			"invoice_id":     text(id),
			"invoice_amount": num(amount),
			"entries":        num(float64(g.entries)),
		}
		if g.entries == 0 {
			rec["status"] = text(StatusUnmatched)
			out = append(out, rec)
			continue
		}

		paid := round2(g.counter)
		variance := round2(paid - amount)
		rec["counter_amount"] = num(paid)
		rec[counterCol] = num(paid)
		rec["variance"] = num(variance)

		switch {
		case math.Abs(variance) < AmountTolerance:
			rec["status"] = text(StatusMatch)
		case class == ir.MatchInvoiceGL:
			rec["status"] = text(StatusAmountException)
		case variance > 0:
			rec["status"] = text(StatusOverpay)
		default:
			rec["status"] = text(StatusPartial)
		}
		out = append(out, rec)
	}
	return out
}

// invoiceAmount is the amount column, or qty_invoiced*unit_price when the
// amount is empty or not numeric.
func invoiceAmount(inv sheet.Record) float64 {
	if a, ok := inv.NumberOK("amount"); ok {
		return a
	}
	return inv.Number("qty_invoiced") * inv.Number("unit_price")
}
