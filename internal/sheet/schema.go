package sheet

import (
	"github.com/roach88/sheetrelay/internal/ir"
)

// Schema is an ordered column list with a column-id → index lookup built
// once at construction.
type Schema struct {
	cols  []ir.ColumnDef
	index map[string]int
}

// NewSchema builds a schema. Duplicate ids keep their first position.
func NewSchema(cols []ir.ColumnDef) *Schema {
	s := &Schema{
		cols:  make([]ir.ColumnDef, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	copy(s.cols, cols)
	for i, c := range s.cols {
		if _, dup := s.index[c.ID]; !dup {
			s.index[c.ID] = i
		}
	}
	return s
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.cols) }

// Columns returns a copy of the column definitions.
func (s *Schema) Columns() []ir.ColumnDef {
	out := make([]ir.ColumnDef, len(s.cols))
	copy(out, s.cols)
	return out
}

// Column returns the definition at position i.
func (s *Schema) Column(i int) ir.ColumnDef { return s.cols[i] }

// Index returns the position of column id.
func (s *Schema) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

// Has reports whether the schema declares column id.
func (s *Schema) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Project orders a column-id keyed map into a row of this schema.
// Ids the schema does not declare are dropped; missing ids are empty.
func (s *Schema) Project(values map[string]ir.Value) Row {
	row := make(Row, len(s.cols))
	for i, c := range s.cols {
		if v, ok := values[c.ID]; ok {
			row[i] = V(v)
		}
	}
	return row
}

// Record is one data row read through its schema.
type Record struct {
	schema *Schema
	values []ir.Value
}

// NewRecord binds values (in schema order) to a schema.
func NewRecord(schema *Schema, values []ir.Value) Record {
	return Record{schema: schema, values: values}
}

// Schema returns the record's schema.
func (r Record) Schema() *Schema { return r.schema }

// Get returns the value of column id, or Empty when absent.
func (r Record) Get(id string) ir.Value {
	if r.schema == nil {
		return ir.Empty()
	}
	i, ok := r.schema.Index(id)
	if !ok || i >= len(r.values) {
		return ir.Empty()
	}
	return r.values[i]
}

// Text returns the display text of column id.
func (r Record) Text(id string) string { return r.Get(id).Text() }

// Number returns column id as a number, or 0 when it is not numeric.
func (r Record) Number(id string) float64 {
	f, _ := r.Get(id).Float()
	return f
}

// NumberOK returns column id as a number and whether it was numeric.
func (r Record) NumberOK(id string) (float64, bool) { return r.Get(id).Float() }

// Values returns a copy of the row values in schema order.
func (r Record) Values() []ir.Value {
	out := make([]ir.Value, len(r.values))
	copy(out, r.values)
	return out
}

// Table is a read-only snapshot of a sheet's data rows.
type Table struct {
	ID     string
	Kind   Kind
	Schema *Schema
	Rows   []Record
}

// RowCount returns the number of rows including the header.
func (t *Table) RowCount() int { return len(t.Rows) + 1 }

// TableFromRows builds a Table from derived rows; formula entries read as empty.
func TableFromRows(id string, kind Kind, schema *Schema, rows []Row) *Table {
	t := &Table{ID: id, Kind: kind, Schema: schema, Rows: make([]Record, 0, len(rows))}
	for _, r := range rows {
		values := make([]ir.Value, schema.Len())
		for i := range values {
			if i < len(r) && r[i].Formula == "" {
				values[i] = r[i].Value
			}
		}
		t.Rows = append(t.Rows, NewRecord(schema, values))
	}
	return t
}
