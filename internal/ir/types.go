package ir

// ColumnType names a column's declared type.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeInteger ColumnType = "integer"
	TypeBoolean ColumnType = "boolean"
	TypeDate    ColumnType = "date"
)

// ValidColumnTypes defines allowed column types. Empty means string.
var ValidColumnTypes = map[ColumnType]bool{
	"":          true,
	TypeString:  true,
	TypeNumber:  true,
	TypeInteger: true,
	TypeBoolean: true,
	TypeDate:    true,
}

// ColumnDef is one column of a sheet schema.
type ColumnDef struct {
	ID       string     `json:"id" yaml:"id"`
	Label    string     `json:"label,omitempty" yaml:"label,omitempty"`
	Type     ColumnType `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool       `json:"required,omitempty" yaml:"required,omitempty"`
}

// FactSheetDef declares an append-only fact sheet.
type FactSheetDef struct {
	SheetID   string      `json:"sheetId" yaml:"sheetId"`
	FactClass string      `json:"factClass,omitempty" yaml:"factClass,omitempty"`
	Name      string      `json:"name,omitempty" yaml:"name,omitempty"`
	Columns   []ColumnDef `json:"columns" yaml:"columns"`
}

// Match classes understood by the match builder.
const (
	MatchThreeWay       = "three_way"
	MatchInvoiceGL      = "invoice_gl"
	MatchInvoicePayment = "invoice_payment"
	MatchGeneric        = "generic"
)

// ValidMatchClasses defines allowed match classes. Empty means generic.
var ValidMatchClasses = map[string]bool{
	"":                  true,
	MatchThreeWay:       true,
	MatchInvoiceGL:      true,
	MatchInvoicePayment: true,
	MatchGeneric:        true,
}

// ComparePair names the quantity-like column on each side of a generic match.
type ComparePair struct {
	Left  string `json:"left" yaml:"left"`
	Right string `json:"right" yaml:"right"`
}

// MatchSheetDef declares a derived join sheet.
//
// SourceSheets are positional per class:
//
//	three_way:       [po, receipt, invoice]
//	invoice_gl:      [invoice, gl]
//	invoice_payment: [invoice, payment]
//	generic:         [left, right]
type MatchSheetDef struct {
	SheetID      string       `json:"sheetId" yaml:"sheetId"`
	MatchClass   string       `json:"matchClass,omitempty" yaml:"matchClass,omitempty"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	Columns      []ColumnDef  `json:"columns" yaml:"columns"`
	SourceSheets []string     `json:"sourceSheets,omitempty" yaml:"sourceSheets,omitempty"`
	JoinKey      string       `json:"joinKey,omitempty" yaml:"joinKey,omitempty"`
	Compare      *ComparePair `json:"compare,omitempty" yaml:"compare,omitempty"`
}

// SummarySheetDef declares a formula-only aggregate sheet. Either
// SourceSheets (generated formulas) or FormulaRows (literal rows) is used.
type SummarySheetDef struct {
	SheetID      string      `json:"sheetId" yaml:"sheetId"`
	SummaryClass string      `json:"summaryClass,omitempty" yaml:"summaryClass,omitempty"`
	Name         string      `json:"name,omitempty" yaml:"name,omitempty"`
	Columns      []ColumnDef `json:"columns" yaml:"columns"`
	SourceSheets []string    `json:"sourceSheets,omitempty" yaml:"sourceSheets,omitempty"`
	FormulaRows  [][]string  `json:"formulaRows,omitempty" yaml:"formulaRows,omitempty"`
}

// KPIBinding ties a named metric to one cell address ("Sheet!A1").
type KPIBinding struct {
	MetricID   string `json:"metricId" yaml:"metricId"`
	SourceCell string `json:"sourceCell" yaml:"sourceCell"`
	Unit       string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// ModuleDef is the static configuration of one module.
type ModuleDef struct {
	ModuleID      string            `json:"moduleId" yaml:"moduleId"`
	BranchID      string            `json:"branchId" yaml:"branchId"`
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`
	FactSheets    []FactSheetDef    `json:"factSheets,omitempty" yaml:"factSheets,omitempty"`
	MatchSheets   []MatchSheetDef   `json:"matchSheets,omitempty" yaml:"matchSheets,omitempty"`
	SummarySheets []SummarySheetDef `json:"summarySheets,omitempty" yaml:"summarySheets,omitempty"`
	KPIBindings   []KPIBinding      `json:"kpiBindings,omitempty" yaml:"kpiBindings,omitempty"`
}

// FactSheet returns the fact sheet definition with the given id.
func (m *ModuleDef) FactSheet(id string) (*FactSheetDef, bool) {
	for i := range m.FactSheets {
		if m.FactSheets[i].SheetID == id {
			return &m.FactSheets[i], true
		}
	}
	return nil, false
}

// FieldSpec maps one target column onto a source field.
type FieldSpec struct {
	Source   string     `json:"source" yaml:"source"`
	Type     ColumnType `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool       `json:"required,omitempty" yaml:"required,omitempty"`
}

// ProvenanceFields names the record fields carrying provenance.
type ProvenanceFields struct {
	SystemField    string `json:"systemField,omitempty" yaml:"systemField,omitempty"`
	SourceIDField  string `json:"sourceIdField,omitempty" yaml:"sourceIdField,omitempty"`
	TimestampField string `json:"timestampField,omitempty" yaml:"timestampField,omitempty"`
}

// RouteDef maps external records onto a fact sheet.
type RouteDef struct {
	RouteID     string               `json:"routeId" yaml:"routeId"`
	TargetSheet string               `json:"targetSheet" yaml:"targetSheet"`
	FactClass   string               `json:"factClass,omitempty" yaml:"factClass,omitempty"`
	Scope       string               `json:"scope,omitempty" yaml:"scope,omitempty"`
	Keys        []string             `json:"keys,omitempty" yaml:"keys,omitempty"`
	Fields      map[string]FieldSpec `json:"fields" yaml:"fields"`
	Provenance  ProvenanceFields     `json:"provenance,omitempty" yaml:"provenance,omitempty"`
}

// MetricValue is one metric reading inside a snapshot.
type MetricValue struct {
	Value      Value  `json:"value"`
	Unit       string `json:"unit,omitempty"`
	SourceCell string `json:"sourceCell"`
	Formula    string `json:"formula,omitempty"`
}

// MetricSnapshot is an immutable KPI reading appended to a branch history.
type MetricSnapshot struct {
	Seq          int64                  `json:"seq"`
	BranchID     string                 `json:"branchId"`
	TriggerSheet string                 `json:"triggerSheet"`
	Metrics      map[string]MetricValue `json:"metrics"`
}

// Clone returns a deep copy.
func (s MetricSnapshot) Clone() MetricSnapshot {
	out := s
	out.Metrics = make(map[string]MetricValue, len(s.Metrics))
	for k, v := range s.Metrics {
		out.Metrics[k] = v
	}
	return out
}

// CanonicalMap renders the snapshot for MarshalCanonical.
func (s MetricSnapshot) CanonicalMap() map[string]any {
	metrics := make(map[string]any, len(s.Metrics))
	for id, m := range s.Metrics {
		entry := map[string]any{
			"value":      m.Value,
			"sourceCell": m.SourceCell,
		}
		if m.Unit != "" {
			entry["unit"] = m.Unit
		}
		if m.Formula != "" {
			entry["formula"] = m.Formula
		}
		metrics[id] = entry
	}
	return map[string]any{
		"seq":          s.Seq,
		"branchId":     s.BranchID,
		"triggerSheet": s.TriggerSheet,
		"metrics":      metrics,
	}
}
