package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/ir"
)

const fixturePath = "../testutil/testdata/procurement.yaml"

func TestLoad_Fixture(t *testing.T) {
	reg, err := Load(fixturePath)
	require.NoError(t, err)
	assert.Empty(t, reg.Warnings())

	mod, ok := reg.Module("procurement")
	require.True(t, ok)
	assert.Equal(t, "branch-east", mod.BranchID)
	assert.Len(t, mod.FactSheets, 6)

	info, ok := reg.Sheet("three_way")
	require.True(t, ok)
	assert.Equal(t, KindMatch, info.Kind)
	assert.Equal(t, "procurement", info.ModuleID)

	rt, ok := reg.Route("erp.po")
	require.True(t, ok)
	assert.Equal(t, "po_lines", rt.TargetSheet)
	assert.Equal(t, ir.TypeNumber, rt.Fields["qty_ordered"].Type)

	assert.Equal(t, []string{"ap.invoice", "ap.payment", "crm.note", "erp.po", "gl.entry", "wms.receipt"}, reg.RouteIDs())
}

func TestLoad_ModulesAreCopies(t *testing.T) {
	reg, err := Load(fixturePath)
	require.NoError(t, err)

	mods := reg.Modules()
	mods[0].ModuleID = "mutated"
	again, ok := reg.Module("procurement")
	require.True(t, ok)
	assert.Equal(t, "procurement", again.ModuleID)
}

func TestLoadDir_MergesYAMLAndCUE(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
modules:
  - moduleId: m1
    branchId: b1
    factSheets:
      - sheetId: f1
        columns: [{ id: k }]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.cue"), []byte(`package defs

routes: [{
	routeId:     "r1"
	targetSheet: "f1"
	fields: k: source: "key"
}]
`), 0o600))

	defs, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs.Modules, 1)
	require.Len(t, defs.Routes, 1)
	assert.Equal(t, "key", defs.Routes[0].Fields["k"].Source)

	_, err = New(defs)
	require.NoError(t, err)
}

func TestLoadDir_Errors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))

	_, err = LoadDir(t.TempDir())
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNoFiles, le.Code)
}

func TestParseCUE(t *testing.T) {
	defs, err := ParseCUE(`
modules: [{
	moduleId: "m"
	branchId: "b"
	factSheets: [{sheetId: "f", columns: [{id: "a", type: "number"}]}]
}]
`)
	require.NoError(t, err)
	require.Len(t, defs.Modules, 1)
	assert.Equal(t, ir.TypeNumber, defs.Modules[0].FactSheets[0].Columns[0].Type)
}

func TestNew_RejectsErrorsKeepsWarnings(t *testing.T) {
	defs := Definitions{
		Modules: []ir.ModuleDef{{
			ModuleID: "m",
			BranchID: "b",
			FactSheets: []ir.FactSheetDef{
				{SheetID: "f", Columns: []ir.ColumnDef{{ID: "a"}}},
			},
			MatchSheets: []ir.MatchSheetDef{
				{SheetID: "x", MatchClass: ir.MatchThreeWay, SourceSheets: []string{"f", "ghost"}},
			},
		}},
	}

	reg, err := New(defs)
	require.NoError(t, err, "unresolvable sources are warnings")
	codes := map[string]bool{}
	for _, w := range reg.Warnings() {
		codes[w.Code] = true
	}
	assert.True(t, codes[ErrUnknownSource])
	assert.True(t, codes[ErrSourceArity])

	defs.Routes = []ir.RouteDef{{RouteID: "r", TargetSheet: "x"}}
	_, err = New(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrRouteTarget)
}

func TestValidate_Codes(t *testing.T) {
	defs := Definitions{
		Modules: []ir.ModuleDef{
			{
				ModuleID: "m",
				FactSheets: []ir.FactSheetDef{
					{SheetID: "f", Columns: []ir.ColumnDef{{ID: "a"}, {ID: "a"}, {ID: "b", Type: "float"}}},
				},
				KPIBindings: []ir.KPIBinding{{MetricID: "k", SourceCell: "nope"}},
			},
			{ModuleID: "m", BranchID: "b", FactSheets: []ir.FactSheetDef{{SheetID: "f"}}},
		},
		Routes: []ir.RouteDef{
			{RouteID: "r", TargetSheet: "f", Keys: []string{"zz"}, Fields: map[string]ir.FieldSpec{"c": {}}},
		},
	}

	got := map[string]bool{}
	for _, e := range Validate(defs) {
		got[e.Code] = true
	}
	for _, code := range []string{
		ErrBranchIDEmpty, ErrDuplicateModule, ErrDuplicateSheet, ErrColumnInvalid,
		ErrInvalidColumnType, ErrKPIAddress, ErrRouteField, ErrRouteKey,
	} {
		assert.True(t, got[code], "expected %s", code)
	}
}
