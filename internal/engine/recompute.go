package engine

import (
	"context"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/match"
	"github.com/roach88/sheetrelay/internal/sheet"
	"github.com/roach88/sheetrelay/internal/summary"
)

// DirtySet is the transient set of sheet ids changed in one cascade.
type DirtySet map[string]struct{}

// NewDirtySet returns a set holding ids.
func NewDirtySet(ids ...string) DirtySet {
	d := make(DirtySet, len(ids))
	d.Add(ids...)
	return d
}

// Add marks ids dirty.
func (d DirtySet) Add(ids ...string) {
	for _, id := range ids {
		d[id] = struct{}{}
	}
}

// Has reports whether id is dirty.
func (d DirtySet) Has(id string) bool {
	_, ok := d[id]
	return ok
}

// Sorted returns the ids in sorted order.
func (d DirtySet) Sorted() []string { return ir.SortedKeys(d) }

// Filter renders the set as the builders' source filter.
func (d DirtySet) Filter() map[string]bool {
	out := make(map[string]bool, len(d))
	for id := range d {
		out[id] = true
	}
	return out
}

// RecomputeResult reports what one cascade rebuilt.
type RecomputeResult struct {
	SheetID          string
	RebuiltMatches   []string
	RebuiltSummaries []string
	Dirty            []string

	// Snapshot is the KPI snapshot appended by this cascade, if the
	// branch declares bindings.
	Snapshot *ir.MetricSnapshot

	// SnapshotUnsaved marks a snapshot kept in memory that the store
	// failed to write. It is absent from the history after a restore.
	SnapshotUnsaved bool
}

// Recompute runs the cascade for an edited sheet: dependent match sheets,
// then dependent summaries, then the branch's KPI snapshot.
func (e *Engine) Recompute(ctx context.Context, changed string) (RecomputeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recompute(ctx, changed)
}

func (e *Engine) recompute(ctx context.Context, changed string) (RecomputeResult, error) {
	mod, ok := e.reg.ModuleForSheet(changed)
	if !ok {
		return RecomputeResult{}, unknownSheet(changed)
	}
	res := RecomputeResult{SheetID: changed}
	dirty := NewDirtySet(changed)

	facts := e.factTables(mod)
	matches := match.Build(facts, mod, match.Options{DirtySources: dirty.Filter()})
	res.RebuiltMatches = e.replace(matches)
	dirty.Add(res.RebuiltMatches...)

	summaries := summary.Build(mod, e.sourceTables(mod, facts), summary.Options{DirtySources: dirty.Filter()})
	res.RebuiltSummaries = e.replace(summaries)
	dirty.Add(res.RebuiltSummaries...)
	res.Dirty = dirty.Sorted()

	if len(mod.KPIBindings) > 0 {
		snap := e.bind(mod, changed)
		// Fact rows are committed before the cascade runs, so a failed
		// snapshot write is logged rather than returned.
		if e.store != nil {
			if err := e.store.AppendSnapshot(ctx, snap); err != nil {
				res.SnapshotUnsaved = true
				e.logger.Error("persist kpi snapshot",
					"branch", mod.BranchID, "seq", snap.Seq, "sheet", changed, "error", err)
			}
		}
		e.history[mod.BranchID] = append(e.history[mod.BranchID], snap)
		out := snap.Clone()
		res.Snapshot = &out
	}

	e.logger.Debug("recompute complete",
		"sheet", changed,
		"matches", len(res.RebuiltMatches),
		"summaries", len(res.RebuiltSummaries),
		"snapshot", res.Snapshot != nil)
	return res, nil
}

// rebuildAll regenerates every derived sheet of every module, without
// appending KPI snapshots.
func (e *Engine) rebuildAll() {
	for _, mod := range e.reg.Modules() {
		facts := e.factTables(mod)
		e.replace(match.Build(facts, mod, match.Options{}))
		e.replace(summary.Build(mod, e.sourceTables(mod, facts), summary.Options{}))
	}
}

// sourceTables is the fact tables plus the current match tables, the
// inputs a summary may reference.
func (e *Engine) sourceTables(mod ir.ModuleDef, facts map[string]*sheet.Table) map[string]*sheet.Table {
	out := make(map[string]*sheet.Table, len(facts)+len(mod.MatchSheets))
	for id, t := range facts {
		out[id] = t
	}
	for _, ms := range mod.MatchSheets {
		if sh, ok := e.sheets[ms.SheetID]; ok {
			out[ms.SheetID] = sh.Table()
		}
	}
	return out
}
