// Package harness runs YAML scenarios against a fresh engine.
//
// A scenario names the module/route definitions to load, a sequence of
// ingest steps and a list of assertions over the resulting sheets and KPI
// history. Runs are deterministic: sequence numbers come from a counter,
// defaulted source ids from a sequence generator and timestamps from a
// stepping clock, so the canonical state can be compared with a golden
// file.
//
// # Scenario Format
//
//	name: three_way_match
//	description: "Receipt and invoice agree with the PO line"
//	definitions: ../definitions
//	steps:
//	  - route: erp.po
//	    records:
//	      - { line_id: L1, qty: 10, price: 2.5 }
//	    expect: { ingested: 1 }
//	  - route: ap.invoice
//	    batch: true
//	    records: [...]
//	assertions:
//	  - type: cell
//	    cell: three_way!K2
//	    value: MATCH
//	  - type: formula
//	    cell: procurement_summary!B2
//	    formula: COUNTA(po_lines!A2:A2)
//	  - type: row_count
//	    sheet: po_lines
//	    count: 2
//	  - type: kpi
//	    branch: branch-east
//	    metric: first_line_status
//	    value: MATCH
//	  - type: snapshot_count
//	    branch: branch-east
//	    count: 3
//
// Row counts include the header row. Cell addresses are "Sheet!A1".
package harness
