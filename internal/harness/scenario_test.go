package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(threeWayScenario))
	require.NoError(t, err)
	assert.Equal(t, "three_way", s.Name)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, "erp.po", s.Steps[0].Route)
	assert.Equal(t, "L1", s.Steps[0].Records[0]["line_id"])
	require.NotNil(t, s.Steps[2].Expect)
	assert.Equal(t, 1, *s.Steps[2].Expect.Ingested)
	assert.Len(t, s.Assertions, 5)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		errSubstr string
	}{
		{"unknown field", "name: x\nstep: []\n", "field step not found"},
		{"missing name", "steps:\n  - route: r\n    records: [{a: 1}]\n", "name is required"},
		{"no steps", "name: x\n", "at least one step"},
		{"step without route", "name: x\nsteps:\n  - records: [{a: 1}]\n", "route is required"},
		{"step without records", "name: x\nsteps:\n  - route: r\n", "records are required"},
		{"bad cell", "name: x\nsteps:\n  - route: r\n    records: [{a: 1}]\nassertions:\n  - type: cell\n    cell: A1\n", "want Sheet!A1"},
		{"formula without text", "name: x\nsteps:\n  - route: r\n    records: [{a: 1}]\nassertions:\n  - type: formula\n    cell: s!A1\n", "formula text is required"},
		{"row count without count", "name: x\nsteps:\n  - route: r\n    records: [{a: 1}]\nassertions:\n  - type: row_count\n    sheet: s\n", "sheet and count"},
		{"unknown type", "name: x\nsteps:\n  - route: r\n    records: [{a: 1}]\nassertions:\n  - type: trace_order\n", "unknown assertion type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestLoadScenario_ResolvesDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: s\ndefinitions: defs\nsteps:\n  - route: r\n    records: [{a: 1}]\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "defs"), s.Definitions)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
