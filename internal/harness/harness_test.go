package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/testutil"
)

const threeWayScenario = `
name: three_way
description: "PO, receipt and invoice agree"
steps:
  - route: erp.po
    records:
      - { line_id: L1, po_number: PO-1, qty: 10, price: 2.5 }
  - route: wms.receipt
    records:
      - { receipt_no: R1, line_id: L1, qty: 10, received: "2024-01-05" }
  - route: ap.invoice
    records:
      - { invoice_no: INV-1, line_id: L1, qty: 10, price: 2.5 }
    expect: { ingested: 1, failed: 0 }
assertions:
  - type: cell
    cell: three_way!K2
    value: MATCH
  - type: formula
    cell: procurement_summary!B2
    formula: COUNTA(po_lines!A2:A2)
  - type: kpi
    branch: branch-east
    metric: first_line_status
    value: MATCH
  - type: kpi
    branch: branch-east
    metric: po_line_count
    formula: COUNTA(po_lines!A2:A2)
  - type: snapshot_count
    branch: branch-east
    count: 3
`

func parse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_ThreeWayMatch(t *testing.T) {
	s := parse(t, threeWayScenario)

	result, err := Run(context.Background(), s, WithRegistry(testutil.ProcurementRegistry(t)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, 1, result.Steps[2].Ingested)
	assert.Len(t, result.Hashes.Facts, 64)
	assert.NotEmpty(t, result.State)
}

func TestRun_ReportsMismatches(t *testing.T) {
	s := parse(t, `
name: wrong
steps:
  - route: erp.po
    records: [{ line_id: L1, qty: 1 }]
    expect: { ingested: 2 }
  - route: nope
    records: [{ x: 1 }]
assertions:
  - type: cell
    cell: three_way!K2
    value: MATCH
  - type: row_count
    sheet: po_lines
    count: 5
`)
	result, err := Run(context.Background(), s, WithRegistry(testutil.ProcurementRegistry(t)))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "ingested 1, want 2")
	assert.Contains(t, result.Errors[1], "UNKNOWN_ROUTE")
	assert.Contains(t, result.Errors[2], "three_way!K2")
	assert.Contains(t, result.Errors[3], "want 5")
	assert.Equal(t, "UNKNOWN_ROUTE", result.Steps[1].Error)
}

func TestRun_ExpectedError(t *testing.T) {
	s := parse(t, `
name: expected_error
steps:
  - route: nope
    records: [{ x: 1 }]
    expect: { error: UNKNOWN_ROUTE }
`)
	result, err := Run(context.Background(), s, WithRegistry(testutil.ProcurementRegistry(t)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_StrictStepCountsFailures(t *testing.T) {
	s := parse(t, `
name: strict
steps:
  - route: erp.po
    strict: true
    records: [{ po_number: PO-1 }, { line_id: L2 }]
    expect: { ingested: 1, failed: 1 }
  - route: erp.po
    batch: true
    records: [{ line_id: L3 }, { line_id: L4 }]
assertions:
  - type: row_count
    sheet: po_lines
    count: 4
  - type: snapshot_count
    branch: branch-east
    count: 2
`)
	result, err := Run(context.Background(), s, WithRegistry(testutil.ProcurementRegistry(t)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_IsDeterministic(t *testing.T) {
	reg := testutil.ProcurementRegistry(t)
	a, err := Run(context.Background(), parse(t, threeWayScenario), WithRegistry(reg))
	require.NoError(t, err)
	b, err := Run(context.Background(), parse(t, threeWayScenario), WithRegistry(reg))
	require.NoError(t, err)

	assert.Equal(t, a.State, b.State)
	assert.Equal(t, a.Hashes, b.Hashes)
}

func TestRun_NoDefinitions(t *testing.T) {
	s := parse(t, "name: bare\nsteps:\n  - route: x\n    records: [{a: 1}]\n")
	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no definitions")
}

func TestRunWithGolden_Notes(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "notes_basic.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "definitions", "notes.yaml"), s.Definitions)

	result := RunWithGolden(t, s)
	assert.True(t, result.Pass)
}

func TestCompareGolden(t *testing.T) {
	dir := t.TempDir()
	path := GoldenPath(filepath.Join(dir, "s.yaml"), "s")
	assert.Equal(t, filepath.Join(dir, GoldenDir, "s.golden"), path)

	result := &Result{State: []byte(`{"a":1}`)}
	ok, exists, err := CompareGolden(path, result)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, exists)

	require.NoError(t, UpdateGolden(path, result))
	ok, exists, err = CompareGolden(path, result)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, exists)

	ok, _, err = CompareGolden(path, &Result{State: []byte(`{"a":2}`)})
	require.NoError(t, err)
	assert.False(t, ok)
}
