package engine

import (
	"github.com/roach88/sheetrelay/internal/formula"
	"github.com/roach88/sheetrelay/internal/ir"
)

// bind reads every KPI binding of mod from the post-rebuild sheets.
// A formula cell yields an empty value plus its formula text; a missing or
// unresolvable cell yields an empty value.
func (e *Engine) bind(mod ir.ModuleDef, trigger string) ir.MetricSnapshot {
	snap := ir.MetricSnapshot{
		Seq:          e.clock.Next(),
		BranchID:     mod.BranchID,
		TriggerSheet: trigger,
		Metrics:      make(map[string]ir.MetricValue, len(mod.KPIBindings)),
	}
	for _, b := range mod.KPIBindings {
		mv := ir.MetricValue{Value: ir.Empty(), Unit: b.Unit, SourceCell: b.SourceCell}
		snap.Metrics[b.MetricID] = mv

		sheetID, a1, err := formula.SplitAddress(b.SourceCell)
		if err != nil {
			e.logger.Warn("kpi binding unresolvable", "metric", b.MetricID, "cell", b.SourceCell, "error", err)
			continue
		}
		sh, ok := e.sheets[sheetID]
		if !ok {
			e.logger.Warn("kpi binding names unknown sheet", "metric", b.MetricID, "sheet", sheetID)
			continue
		}
		cell, ok := sh.CellAt(a1)
		if !ok {
			continue
		}
		if cell.IsFormula() {
			mv.Formula = cell.Formula
		} else {
			mv.Value = cell.Value
		}
		snap.Metrics[b.MetricID] = mv
	}
	return snap
}

// History returns copies of a branch's KPI snapshots, oldest first.
func (e *Engine) History(branchID string) []ir.MetricSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := e.history[branchID]
	out := make([]ir.MetricSnapshot, len(hist))
	for i, s := range hist {
		out[i] = s.Clone()
	}
	return out
}

// Latest returns a copy of a branch's newest KPI snapshot.
func (e *Engine) Latest(branchID string) (ir.MetricSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hist := e.history[branchID]
	if len(hist) == 0 {
		return ir.MetricSnapshot{}, false
	}
	return hist[len(hist)-1].Clone(), true
}

// Branches returns every branch id with KPI history, sorted.
func (e *Engine) Branches() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ir.SortedKeys(e.history)
}
