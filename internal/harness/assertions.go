package harness

import (
	"fmt"

	"github.com/roach88/sheetrelay/internal/engine"
	"github.com/roach88/sheetrelay/internal/formula"
	"github.com/roach88/sheetrelay/internal/ir"
)

func evaluate(eng *engine.Engine, a Assertion) error {
	switch a.Type {
	case AssertCell:
		return assertCell(eng, a)
	case AssertFormula:
		return assertFormula(eng, a)
	case AssertRowCount:
		return assertRowCount(eng, a)
	case AssertKPI:
		return assertKPI(eng, a)
	case AssertSnapshotCount:
		got := len(eng.History(a.Branch))
		if got != *a.Count {
			return fmt.Errorf("%s has %d snapshots, want %d", a.Branch, got, *a.Count)
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertCell(eng *engine.Engine, a Assertion) error {
	sheetID, a1, err := formula.SplitAddress(a.Cell)
	if err != nil {
		return err
	}
	c, ok, err := eng.Cell(sheetID, a1)
	if err != nil {
		return err
	}
	want := ir.FromAny(a.Value)
	if !ok {
		if want.IsEmpty() {
			return nil
		}
		return fmt.Errorf("%s: no such cell, want %s", a.Cell, want)
	}
	if c.IsFormula() {
		return fmt.Errorf("%s: holds formula %q, want value %s", a.Cell, c.Formula, want)
	}
	if !c.Value.Equal(want) {
		return fmt.Errorf("%s: got %s, want %s", a.Cell, c.Value, want)
	}
	return nil
}

func assertFormula(eng *engine.Engine, a Assertion) error {
	sheetID, a1, err := formula.SplitAddress(a.Cell)
	if err != nil {
		return err
	}
	c, ok, err := eng.Cell(sheetID, a1)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: no such cell", a.Cell)
	}
	if c.Formula != a.Formula {
		return fmt.Errorf("%s: formula %q, want %q", a.Cell, c.Formula, a.Formula)
	}
	return nil
}

func assertRowCount(eng *engine.Engine, a Assertion) error {
	view, err := eng.Sheet(a.Sheet)
	if err != nil {
		return err
	}
	if view.RowCount != *a.Count {
		return fmt.Errorf("%s has %d rows, want %d", a.Sheet, view.RowCount, *a.Count)
	}
	return nil
}

// assertKPI checks the latest snapshot of a branch.
func assertKPI(eng *engine.Engine, a Assertion) error {
	snap, ok := eng.Latest(a.Branch)
	if !ok {
		return fmt.Errorf("%s has no snapshots", a.Branch)
	}
	m, ok := snap.Metrics[a.Metric]
	if !ok {
		return fmt.Errorf("%s: metric %s not in latest snapshot", a.Branch, a.Metric)
	}
	if a.Formula != "" && m.Formula != a.Formula {
		return fmt.Errorf("%s.%s: formula %q, want %q", a.Branch, a.Metric, m.Formula, a.Formula)
	}
	if want := ir.FromAny(a.Value); !m.Value.Equal(want) {
		return fmt.Errorf("%s.%s: got %s, want %s", a.Branch, a.Metric, m.Value, want)
	}
	return nil
}
