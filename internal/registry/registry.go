// Package registry holds the frozen module and route configuration.
//
// A Registry is built once at startup from Definitions and never changes
// afterwards, so it is safe to share between goroutines without locking.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sheetrelay/internal/ir"
)

// Kind classifies a declared sheet.
type Kind string

const (
	KindFact    Kind = "fact"
	KindMatch   Kind = "match"
	KindSummary Kind = "summary"
)

// Definitions is the raw configuration as loaded from disk.
type Definitions struct {
	Modules []ir.ModuleDef `json:"modules,omitempty" yaml:"modules,omitempty"`
	Routes  []ir.RouteDef  `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// Merge appends other's definitions.
func (d *Definitions) Merge(other Definitions) {
	d.Modules = append(d.Modules, other.Modules...)
	d.Routes = append(d.Routes, other.Routes...)
}

type sheetRef struct {
	module int
	kind   Kind
}

// SheetInfo locates a declared sheet.
type SheetInfo struct {
	ModuleID string
	BranchID string
	Kind     Kind
}

// Registry is the validated, read-only configuration.
type Registry struct {
	modules  []ir.ModuleDef
	byModule map[string]int
	sheets   map[string]sheetRef
	routes   map[string]ir.RouteDef
	warnings []ValidationError
}

// New validates defs and freezes them. Errors are joined into one error;
// warnings are kept and exposed through Warnings.
func New(defs Definitions) (*Registry, error) {
	var errs []error
	var warnings []ValidationError
	for _, v := range Validate(defs) {
		if v.IsWarning() {
			warnings = append(warnings, v)
			continue
		}
		errs = append(errs, v)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid definitions: %w", errors.Join(errs...))
	}

	r := &Registry{
		modules:  slices.Clone(defs.Modules),
		byModule: make(map[string]int, len(defs.Modules)),
		sheets:   make(map[string]sheetRef),
		routes:   make(map[string]ir.RouteDef, len(defs.Routes)),
		warnings: warnings,
	}
	for i, m := range r.modules {
		r.byModule[m.ModuleID] = i
		for _, fs := range m.FactSheets {
			r.sheets[fs.SheetID] = sheetRef{module: i, kind: KindFact}
		}
		for _, ms := range m.MatchSheets {
			r.sheets[ms.SheetID] = sheetRef{module: i, kind: KindMatch}
		}
		for _, ss := range m.SummarySheets {
			r.sheets[ss.SheetID] = sheetRef{module: i, kind: KindSummary}
		}
	}
	for _, rt := range defs.Routes {
		r.routes[rt.RouteID] = rt
	}
	return r, nil
}

// Warnings returns validation problems that did not block construction.
func (r *Registry) Warnings() []ValidationError { return slices.Clone(r.warnings) }

// Modules returns the module definitions in declaration order.
func (r *Registry) Modules() []ir.ModuleDef { return slices.Clone(r.modules) }

// Module returns the module with the given id.
func (r *Registry) Module(id string) (ir.ModuleDef, bool) {
	i, ok := r.byModule[id]
	if !ok {
		return ir.ModuleDef{}, false
	}
	return r.modules[i], true
}

// Sheet locates a declared sheet.
func (r *Registry) Sheet(id string) (SheetInfo, bool) {
	ref, ok := r.sheets[id]
	if !ok {
		return SheetInfo{}, false
	}
	m := r.modules[ref.module]
	return SheetInfo{ModuleID: m.ModuleID, BranchID: m.BranchID, Kind: ref.kind}, true
}

// ModuleForSheet returns the module that declares sheet id.
func (r *Registry) ModuleForSheet(id string) (ir.ModuleDef, bool) {
	ref, ok := r.sheets[id]
	if !ok {
		return ir.ModuleDef{}, false
	}
	return r.modules[ref.module], true
}

// Route returns the route with the given id.
func (r *Registry) Route(id string) (ir.RouteDef, bool) {
	rt, ok := r.routes[id]
	return rt, ok
}

// RouteIDs returns all route ids, sorted.
func (r *Registry) RouteIDs() []string { return ir.SortedKeys(r.routes) }

// SheetIDs returns all declared sheet ids, sorted.
func (r *Registry) SheetIDs() []string { return ir.SortedKeys(r.sheets) }
