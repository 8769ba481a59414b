package registry

import (
	"fmt"
	"strings"

	"github.com/roach88/sheetrelay/internal/formula"
	"github.com/roach88/sheetrelay/internal/ir"
)

// Validation codes (E100-E199)
const (
	// Module errors (E100-E109)
	ErrModuleIDEmpty     = "E100" // moduleId is required
	ErrDuplicateModule   = "E101" // moduleId already declared
	ErrBranchIDEmpty     = "E102" // branchId is required
	ErrSheetIDEmpty      = "E103" // sheetId is required
	ErrDuplicateSheet    = "E104" // sheetId already declared in any module
	ErrColumnInvalid     = "E105" // empty or duplicate column id
	ErrInvalidColumnType = "E106" // unknown column type

	// Derived sheet problems (E110-E119); reported as warnings
	ErrInvalidMatchClass = "E110" // unknown matchClass
	ErrUnknownSource     = "E111" // sourceSheets entry not declared in module
	ErrSourceArity       = "E112" // wrong number of sources for matchClass
	ErrMissingJoin       = "E113" // generic match needs joinKey and compare
	ErrEmptySummary      = "E114" // summary has neither sources nor formulaRows

	// KPI errors (E120-E129)
	ErrKPIInvalid      = "E120" // empty or duplicate metricId
	ErrKPIAddress      = "E121" // sourceCell is not Sheet!A1
	ErrKPIUnknownSheet = "E122" // sourceCell names an undeclared sheet (warning)

	// Route errors (E130-E139)
	ErrRouteIDEmpty   = "E130" // routeId is required
	ErrDuplicateRoute = "E131" // routeId already declared
	ErrRouteTarget    = "E132" // targetSheet is not a declared fact sheet
	ErrRouteField     = "E133" // field maps to an undeclared column or has no source
	ErrRouteKey       = "E134" // key column not declared
	ErrRouteFieldType = "E135" // unknown field type
)

// Severity levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// ValidationError is one problem found in the definitions.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Level   string `json:"level"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsWarning reports whether the problem leaves the definitions usable.
func (e ValidationError) IsWarning() bool { return e.Level == LevelWarning }

type validator struct {
	errs   []ValidationError
	sheets map[string]sheetRef
}

func (v *validator) add(level, code, field, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
		Level:   level,
	})
}

// Validate checks module and route definitions. It reports every problem
// found (does not fail fast). Problems that only make a derived sheet
// come out empty are warnings; everything else is an error.
func Validate(defs Definitions) []ValidationError {
	v := &validator{sheets: make(map[string]sheetRef)}
	moduleIDs := make(map[string]bool)

	for i := range defs.Modules {
		m := &defs.Modules[i]
		path := fmt.Sprintf("modules[%d]", i)

		if strings.TrimSpace(m.ModuleID) == "" {
			v.add(LevelError, ErrModuleIDEmpty, path+".moduleId", "moduleId is required")
		} else if moduleIDs[m.ModuleID] {
			v.add(LevelError, ErrDuplicateModule, path+".moduleId", "duplicate moduleId %q", m.ModuleID)
		}
		moduleIDs[m.ModuleID] = true

		if strings.TrimSpace(m.BranchID) == "" {
			v.add(LevelError, ErrBranchIDEmpty, path+".branchId", "branchId is required")
		}

		for j, fs := range m.FactSheets {
			v.sheet(fmt.Sprintf("%s.factSheets[%d]", path, j), fs.SheetID, fs.Columns, i, KindFact)
		}
		for j, ms := range m.MatchSheets {
			v.sheet(fmt.Sprintf("%s.matchSheets[%d]", path, j), ms.SheetID, ms.Columns, i, KindMatch)
		}
		for j, ss := range m.SummarySheets {
			v.sheet(fmt.Sprintf("%s.summarySheets[%d]", path, j), ss.SheetID, ss.Columns, i, KindSummary)
		}
	}

	for i := range defs.Modules {
		m := &defs.Modules[i]
		path := fmt.Sprintf("modules[%d]", i)
		for j, ms := range m.MatchSheets {
			v.matchSheet(fmt.Sprintf("%s.matchSheets[%d]", path, j), ms, i)
		}
		for j, ss := range m.SummarySheets {
			v.summarySheet(fmt.Sprintf("%s.summarySheets[%d]", path, j), ss, i)
		}
		v.kpis(path, m.KPIBindings, i)
	}

	routeIDs := make(map[string]bool)
	for i, r := range defs.Routes {
		v.route(fmt.Sprintf("routes[%d]", i), r, defs.Modules, routeIDs)
	}

	return v.errs
}

func (v *validator) sheet(path, id string, cols []ir.ColumnDef, module int, kind Kind) {
	if strings.TrimSpace(id) == "" {
		v.add(LevelError, ErrSheetIDEmpty, path+".sheetId", "sheetId is required")
	} else if _, dup := v.sheets[id]; dup {
		v.add(LevelError, ErrDuplicateSheet, path+".sheetId", "duplicate sheetId %q", id)
	} else {
		v.sheets[id] = sheetRef{module: module, kind: kind}
	}

	seen := make(map[string]bool, len(cols))
	for k, c := range cols {
		field := fmt.Sprintf("%s.columns[%d]", path, k)
		switch {
		case strings.TrimSpace(c.ID) == "":
			v.add(LevelError, ErrColumnInvalid, field+".id", "column id is required")
		case seen[c.ID]:
			v.add(LevelError, ErrColumnInvalid, field+".id", "duplicate column id %q", c.ID)
		}
		seen[c.ID] = true
		if !ir.ValidColumnTypes[c.Type] {
			v.add(LevelError, ErrInvalidColumnType, field+".type", "invalid type %q for column %q", c.Type, c.ID)
		}
	}
}

// sources warns about sourceSheets entries the module does not declare.
func (v *validator) sources(path string, sources []string, module int) {
	for k, src := range sources {
		ref, ok := v.sheets[src]
		if !ok || ref.module != module {
			v.add(LevelWarning, ErrUnknownSource, fmt.Sprintf("%s.sourceSheets[%d]", path, k),
				"source sheet %q is not declared in this module", src)
		}
	}
}

func (v *validator) matchSheet(path string, ms ir.MatchSheetDef, module int) {
	if !ir.ValidMatchClasses[ms.MatchClass] {
		v.add(LevelWarning, ErrInvalidMatchClass, path+".matchClass", "invalid matchClass %q", ms.MatchClass)
		return
	}
	v.sources(path, ms.SourceSheets, module)

	want := 2
	if ms.MatchClass == ir.MatchThreeWay {
		want = 3
	}
	if len(ms.SourceSheets) != 0 && len(ms.SourceSheets) != want {
		v.add(LevelWarning, ErrSourceArity, path+".sourceSheets",
			"matchClass %q takes %d source sheets, got %d", matchClassName(ms.MatchClass), want, len(ms.SourceSheets))
	}
	if (ms.MatchClass == "" || ms.MatchClass == ir.MatchGeneric) &&
		(ms.JoinKey == "" || ms.Compare == nil || ms.Compare.Left == "" || ms.Compare.Right == "") {
		v.add(LevelWarning, ErrMissingJoin, path, "generic match needs joinKey and compare.left/right")
	}
}

func (v *validator) summarySheet(path string, ss ir.SummarySheetDef, module int) {
	if len(ss.SourceSheets) == 0 && len(ss.FormulaRows) == 0 {
		v.add(LevelWarning, ErrEmptySummary, path, "summary declares neither sourceSheets nor formulaRows")
	}
	v.sources(path, ss.SourceSheets, module)
}

func (v *validator) kpis(path string, bindings []ir.KPIBinding, module int) {
	seen := make(map[string]bool, len(bindings))
	for k, b := range bindings {
		field := fmt.Sprintf("%s.kpiBindings[%d]", path, k)
		switch {
		case strings.TrimSpace(b.MetricID) == "":
			v.add(LevelError, ErrKPIInvalid, field+".metricId", "metricId is required")
		case seen[b.MetricID]:
			v.add(LevelError, ErrKPIInvalid, field+".metricId", "duplicate metricId %q", b.MetricID)
		}
		seen[b.MetricID] = true

		sheetID, _, err := formula.SplitAddress(b.SourceCell)
		if err != nil {
			v.add(LevelError, ErrKPIAddress, field+".sourceCell", "%v", err)
			continue
		}
		if ref, ok := v.sheets[sheetID]; !ok || ref.module != module {
			v.add(LevelWarning, ErrKPIUnknownSheet, field+".sourceCell",
				"sheet %q is not declared in this module", sheetID)
		}
	}
}

func (v *validator) route(path string, r ir.RouteDef, modules []ir.ModuleDef, ids map[string]bool) {
	if strings.TrimSpace(r.RouteID) == "" {
		v.add(LevelError, ErrRouteIDEmpty, path+".routeId", "routeId is required")
	} else if ids[r.RouteID] {
		v.add(LevelError, ErrDuplicateRoute, path+".routeId", "duplicate routeId %q", r.RouteID)
	}
	ids[r.RouteID] = true

	ref, ok := v.sheets[r.TargetSheet]
	if !ok || ref.kind != KindFact {
		v.add(LevelError, ErrRouteTarget, path+".targetSheet", "%q is not a declared fact sheet", r.TargetSheet)
		return
	}
	fs, _ := modules[ref.module].FactSheet(r.TargetSheet)
	cols := make(map[string]bool, len(fs.Columns))
	for _, c := range fs.Columns {
		cols[c.ID] = true
	}

	for _, colID := range ir.SortedKeys(r.Fields) {
		spec := r.Fields[colID]
		field := fmt.Sprintf("%s.fields.%s", path, colID)
		if !cols[colID] {
			v.add(LevelError, ErrRouteField, field, "column %q not declared on sheet %q", colID, r.TargetSheet)
		}
		if strings.TrimSpace(spec.Source) == "" {
			v.add(LevelError, ErrRouteField, field+".source", "source is required")
		}
		if !ir.ValidColumnTypes[spec.Type] {
			v.add(LevelError, ErrRouteFieldType, field+".type", "invalid type %q", spec.Type)
		}
	}
	for k, key := range r.Keys {
		if !cols[key] {
			v.add(LevelError, ErrRouteKey, fmt.Sprintf("%s.keys[%d]", path, k),
				"key column %q not declared on sheet %q", key, r.TargetSheet)
		}
	}
}

func matchClassName(c string) string {
	if c == "" {
		return ir.MatchGeneric
	}
	return c
}
