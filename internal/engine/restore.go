package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sheetrelay/internal/ir"
	"github.com/roach88/sheetrelay/internal/sheet"
)

// ErrNoStore is returned by Restore when the engine has no store.
var ErrNoStore = errors.New("engine has no store")

// RestoreResult reports what Restore reloaded.
type RestoreResult struct {
	Rows      int
	Skipped   int
	Snapshots int
	Seq       int64
}

// Restore replays the store's fact log into empty fact sheets, rebuilds
// every derived sheet once and reloads KPI history as stored. Snapshots are
// not re-appended. Rows for sheets no module declares are skipped.
//
// Restore must run before any ingestion.
func (e *Engine) Restore(ctx context.Context) (RestoreResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store == nil {
		return RestoreResult{}, ErrNoStore
	}
	for id, sh := range e.sheets {
		if sh.Kind() == sheet.KindFact && sh.RowCount() > 1 {
			return RestoreResult{}, fmt.Errorf("restore: sheet %s already holds rows", id)
		}
	}

	rows, err := e.store.ReadFactRows(ctx)
	if err != nil {
		return RestoreResult{}, storeError("read fact rows", err)
	}

	var res RestoreResult
	touched := make(map[string]*sheet.Sheet)
	for _, r := range rows {
		sh, ok := e.sheets[r.SheetID]
		if !ok || sh.Kind() != sheet.KindFact {
			res.Skipped++
			continue
		}
		if r.RowIdx != sh.RowCount() {
			return res, storeError(fmt.Sprintf("sheet %s: stored row %d, expected %d", r.SheetID, r.RowIdx, sh.RowCount()), nil)
		}
		prov := r.Provenance
		if _, err := sh.AppendRowDeferred(r.Values, &prov); err != nil {
			return res, storeError("replay fact row", err)
		}
		touched[r.SheetID] = sh
		res.Rows++
		res.Seq = max(res.Seq, r.Seq)
	}
	for _, sh := range touched {
		sh.RebuildIndex()
	}
	e.rebuildAll()

	snaps, err := e.store.ReadAllSnapshots(ctx)
	if err != nil {
		return res, storeError("read snapshots", err)
	}
	history := make(map[string][]ir.MetricSnapshot)
	for _, s := range snaps {
		history[s.BranchID] = append(history[s.BranchID], s)
		res.Seq = max(res.Seq, s.Seq)
	}
	e.history = history
	res.Snapshots = len(snaps)

	advanceTo(e.clock, res.Seq)

	if res.Skipped > 0 {
		e.logger.Warn("restore skipped rows for undeclared sheets", "skipped", res.Skipped)
	}
	e.logger.Info("restore complete", "rows", res.Rows, "snapshots", res.Snapshots, "seq", res.Seq)
	return res, nil
}
