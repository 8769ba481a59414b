package engine

import (
	"fmt"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// StateHashes are order-independent content hashes of engine state.
// Two engines holding the same fact rows hash identically in Facts,
// Matches, Summaries and Sheets; provenance (defaulted ids, timestamps) is
// not content. KPIs covers snapshot seq and trigger sheet, so it matches
// only when the same ingests ran in the same order.
type StateHashes struct {
	Facts     string            `json:"facts"`
	Matches   string            `json:"matches"`
	Summaries string            `json:"summaries"`
	KPIs      string            `json:"kpis"`
	Sheets    map[string]string `json:"sheets"`
}

// Hashes computes the current state hashes.
func (e *Engine) Hashes() (StateHashes, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := StateHashes{Sheets: make(map[string]string, len(e.sheets))}
	byKind := map[sheet.Kind][][]byte{}

	for _, id := range ir.SortedKeys(e.sheets) {
		sh := e.sheets[id]
		members, err := rowMembers(sh)
		if err != nil {
			return StateHashes{}, err
		}
		out.Sheets[id] = ir.SetHash(ir.DomainRowSet, members)
		byKind[sh.Kind()] = append(byKind[sh.Kind()], members...)
	}
	out.Facts = ir.SetHash(ir.DomainRowSet, byKind[sheet.KindFact])
	out.Matches = ir.SetHash(ir.DomainRowSet, byKind[sheet.KindMatch])
	out.Summaries = ir.SetHash(ir.DomainRowSet, byKind[sheet.KindSummary])

	var snaps [][]byte
	for _, branch := range ir.SortedKeys(e.history) {
		for _, s := range e.history[branch] {
			data, err := ir.MarshalCanonical(s.CanonicalMap())
			if err != nil {
				return StateHashes{}, fmt.Errorf("hash snapshot %s/%d: %w", branch, s.Seq, err)
			}
			snaps = append(snaps, data)
		}
	}
	out.KPIs = ir.SetHash(ir.DomainSnapshot, snaps)
	return out, nil
}

// rowMembers encodes each row, tagged with its sheet id and row index, as
// canonical JSON.
func rowMembers(sh *sheet.Sheet) ([][]byte, error) {
	rows := sh.CanonicalRows()
	out := make([][]byte, 0, len(rows))
	for i, row := range rows {
		data, err := ir.MarshalCanonical(map[string]any{
			"sheet": sh.ID(),
			"row":   i,
			"cells": row,
		})
		if err != nil {
			return nil, fmt.Errorf("hash %s row %d: %w", sh.ID(), i, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// CanonicalState renders every sheet's rows and every branch's KPI history
// for MarshalCanonical. It carries the same content the hashes cover.
func (e *Engine) CanonicalState() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()

	sheets := make(map[string]any, len(e.sheets))
	for id, sh := range e.sheets {
		rows := sh.CanonicalRows()
		list := make([]any, len(rows))
		for i, row := range rows {
			list[i] = row
		}
		sheets[id] = list
	}
	kpis := make(map[string]any, len(e.history))
	for branch, hist := range e.history {
		list := make([]any, len(hist))
		for i, s := range hist {
			list[i] = s.CanonicalMap()
		}
		kpis[branch] = list
	}
	return map[string]any{"sheets": sheets, "kpis": kpis}
}
