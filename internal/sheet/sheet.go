package sheet

import (
	"fmt"
	"time"

	"github.com/roach88/sheetrelay/internal/formula"
	"github.com/roach88/sheetrelay/internal/ir"
)

// Kind distinguishes how a sheet's content is produced.
type Kind string

const (
	KindFact    Kind = "fact"
	KindMatch   Kind = "match"
	KindSummary Kind = "summary"
)

// Provenance identifies where an ingested row came from.
// Only the first cell of an ingested row carries it.
type Provenance struct {
	SourceSystem string    `json:"sourceSystem"`
	SourceID     string    `json:"sourceId"`
	IngestedAt   time.Time `json:"ingestedAt"`
	RouteID      string    `json:"routeId"`
}

// Cell holds exactly one of Value or Formula.
type Cell struct {
	Row        int
	Col        int
	Value      ir.Value
	Formula    string
	Display    string
	Provenance *Provenance
}

// IsFormula reports whether the cell carries formula text.
func (c Cell) IsFormula() bool { return c.Formula != "" }

// Address returns the A1 name of the cell.
func (c Cell) Address() string { return formula.CellName(c.Col, c.Row) }

// Entry is the content of one derived cell: a value or a formula.
type Entry struct {
	Value   ir.Value
	Formula string
}

// V wraps a value as an entry.
func V(v ir.Value) Entry { return Entry{Value: v} }

// F wraps formula text (without the leading '=') as an entry.
func F(text string) Entry { return Entry{Formula: text} }

// Row is one derived row in schema order.
type Row []Entry

type coord struct{ row, col int }

// Sheet is an ordered, dense cell collection. Row 0 holds the header.
//
// Fact sheets only grow through AppendRow; match and summary sheets are
// only ever rewritten whole through Replace.
//
// Sheet is not safe for concurrent use; the engine serializes access.
type Sheet struct {
	id     string
	kind   Kind
	schema *Schema

	cells []Cell
	rows  int

	index       map[coord]int
	indexStale  bool
	indexBuilds int
}

// New creates a sheet containing only its header row.
func New(id string, kind Kind, schema *Schema) *Sheet {
	s := &Sheet{id: id, kind: kind, schema: schema}
	s.reset()
	s.RebuildIndex()
	return s
}

// ID returns the sheet id.
func (s *Sheet) ID() string { return s.id }

// Kind returns the sheet kind.
func (s *Sheet) Kind() Kind { return s.kind }

// Schema returns the column schema.
func (s *Sheet) Schema() *Schema { return s.schema }

// RowCount returns the number of rows including the header.
func (s *Sheet) RowCount() int { return s.rows }

// ColCount returns the number of columns.
func (s *Sheet) ColCount() int { return s.schema.Len() }

// IndexBuilds returns how many times the address index was rebuilt.
func (s *Sheet) IndexBuilds() int { return s.indexBuilds }

func (s *Sheet) reset() {
	s.cells = s.cells[:0]
	for i, col := range s.schema.Columns() {
		label := col.Label
		if label == "" {
			label = col.ID
		}
		s.cells = append(s.cells, Cell{Row: 0, Col: i, Value: ir.NewString(label), Display: label})
	}
	s.rows = 1
	s.indexStale = true
}

// AppendRow appends one fact row at the next row index and rebuilds the index.
func (s *Sheet) AppendRow(values []ir.Value, prov *Provenance) (int, error) {
	row, err := s.AppendRowDeferred(values, prov)
	if err != nil {
		return 0, err
	}
	s.RebuildIndex()
	return row, nil
}

// AppendRowDeferred appends one fact row but leaves the index stale; the
// caller must RebuildIndex before reading cells. Used by batch ingestion.
func (s *Sheet) AppendRowDeferred(values []ir.Value, prov *Provenance) (int, error) {
	if s.kind != KindFact {
		return 0, fmt.Errorf("sheet %s: append to %s sheet", s.id, s.kind)
	}
	if len(values) != s.schema.Len() {
		return 0, fmt.Errorf("sheet %s: row has %d values, schema has %d columns", s.id, len(values), s.schema.Len())
	}
	row := s.rows
	for col, v := range values {
		c := Cell{Row: row, Col: col, Value: v, Display: v.Text()}
		if col == 0 && prov != nil {
			p := *prov
			c.Provenance = &p
		}
		s.cells = append(s.cells, c)
	}
	s.rows++
	s.indexStale = true
	return row, nil
}

// Replace clears the sheet and re-emits the header followed by rows.
// Rows are padded or truncated to the schema width.
func (s *Sheet) Replace(rows []Row) {
	s.reset()
	width := s.schema.Len()
	for _, r := range rows {
		row := s.rows
		for col := 0; col < width; col++ {
			var e Entry
			if col < len(r) {
				e = r[col]
			}
			c := Cell{Row: row, Col: col}
			if e.Formula != "" {
				c.Formula = e.Formula
				c.Display = "=" + e.Formula
			} else {
				c.Value = e.Value
				c.Display = e.Value.Text()
			}
			s.cells = append(s.cells, c)
		}
		s.rows++
	}
	s.RebuildIndex()
}

// RebuildIndex rebuilds the row,col → cell lookup.
func (s *Sheet) RebuildIndex() {
	s.index = make(map[coord]int, len(s.cells))
	for i, c := range s.cells {
		s.index[coord{c.Row, c.Col}] = i
	}
	s.indexStale = false
	s.indexBuilds++
}

// Cell returns the cell at a zero-based row and column.
func (s *Sheet) Cell(row, col int) (Cell, bool) {
	if s.indexStale {
		s.RebuildIndex()
	}
	i, ok := s.index[coord{row, col}]
	if !ok {
		return Cell{}, false
	}
	return s.cells[i], true
}

// CellAt resolves an A1 address (e.g. "C2") against the index.
func (s *Sheet) CellAt(a1 string) (Cell, bool) {
	col, row, err := formula.ParseCell(a1)
	if err != nil {
		return Cell{}, false
	}
	return s.Cell(row, col)
}

// Cells returns a copy of all cells in row-major order.
func (s *Sheet) Cells() []Cell {
	out := make([]Cell, len(s.cells))
	copy(out, s.cells)
	return out
}

// Records returns the data rows (row 1 onward) as typed records.
func (s *Sheet) Records() []Record {
	width := s.schema.Len()
	out := make([]Record, 0, s.rows-1)
	if width == 0 {
		return out
	}
	for r := 1; r < s.rows; r++ {
		base := r * width
		values := make([]ir.Value, width)
		for c := 0; c < width; c++ {
			values[c] = s.cells[base+c].Value
		}
		out = append(out, Record{schema: s.schema, values: values})
	}
	return out
}

// Table snapshots the sheet's data rows.
func (s *Sheet) Table() *Table {
	return &Table{ID: s.id, Kind: s.kind, Schema: s.schema, Rows: s.Records()}
}

// CanonicalRows renders each row (header included) for canonical hashing.
// Value cells encode as scalars, formula cells as {"f": text}. Provenance
// is excluded because defaulted ids and timestamps are not content.
func (s *Sheet) CanonicalRows() [][]any {
	width := s.schema.Len()
	out := make([][]any, 0, s.rows)
	if width == 0 {
		return out
	}
	for r := 0; r < s.rows; r++ {
		row := make([]any, width)
		for c := 0; c < width; c++ {
			cell := s.cells[r*width+c]
			if cell.IsFormula() {
				row[c] = map[string]any{"f": cell.Formula}
			} else {
				row[c] = cell.Value
			}
		}
		out = append(out, row)
	}
	return out
}
