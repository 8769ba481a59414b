package testutil

import (
	_ "embed"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sheetrelay/internal/registry"
)

// ProcurementYAML is a procurement module (PO lines, receipts, invoices,
// GL entries, payments and an unrelated vendor-notes sheet) with its
// three-way, invoice↔GL and invoice↔payment matches, two summaries, KPI
// bindings and one route per fact sheet.
//
//go:embed testdata/procurement.yaml
var ProcurementYAML []byte

// ProcurementDefinitions parses ProcurementYAML.
func ProcurementDefinitions(t testing.TB) registry.Definitions {
	t.Helper()
	defs, err := registry.ParseYAML(ProcurementYAML)
	require.NoError(t, err)
	return defs
}

// ProcurementRegistry builds a frozen registry from ProcurementYAML.
func ProcurementRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	reg, err := registry.New(ProcurementDefinitions(t))
	require.NoError(t, err)
	return reg
}
