package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_SingleCells(t *testing.T) {
	refs := Extract("=A1+B2*$C$3")
	require.Len(t, refs, 3)
	assert.Equal(t, "A1", refs[0].Start)
	assert.Equal(t, "B2", refs[1].Start)
	assert.Equal(t, "C3", refs[2].Start, "absolute markers are stripped")
	for _, r := range refs {
		assert.False(t, r.IsRange)
		assert.Empty(t, r.Sheet)
	}
}

func TestExtract_Range(t *testing.T) {
	refs := Extract("SUM(A1:B2)")
	require.Len(t, refs, 1)
	assert.True(t, refs[0].IsRange)
	assert.Equal(t, "A1", refs[0].Start)
	assert.Equal(t, "B2", refs[0].End)
	assert.Equal(t, []string{"A1", "B1", "A2", "B2"}, refs[0].Cells())
}

func TestExtract_RangeCornersNormalized(t *testing.T) {
	refs := Extract("=SUM(B2:A1)")
	require.Len(t, refs, 1)
	assert.Equal(t, "A1", refs[0].Start)
	assert.Equal(t, "B2", refs[0].End)
}

func TestExtract_QualifiedReferences(t *testing.T) {
	refs := Extract("=po_lines!C2 + 'My Sheet'!A1:A3 + 'It''s'!B1")
	require.Len(t, refs, 3)

	assert.Equal(t, "po_lines", refs[0].Sheet)
	assert.Equal(t, "C2", refs[0].Start)

	assert.Equal(t, "My Sheet", refs[1].Sheet)
	assert.True(t, refs[1].IsRange)
	assert.Equal(t, "'My Sheet'!A1:A3", refs[1].String())

	assert.Equal(t, "It's", refs[2].Sheet)
}

func TestExtract_SkipsStringsAndFunctions(t *testing.T) {
	refs := Extract(`=IF(LOG10(A1)>1,"B2 is text","say ""C3""")`)
	require.Len(t, refs, 1)
	assert.Equal(t, "A1", refs[0].Start)
}

func TestExtract_IgnoresNonCells(t *testing.T) {
	assert.Empty(t, Extract("=1.5+TRUE+name_1"))
	assert.Empty(t, Extract(`="A1"`))
	assert.Empty(t, Extract("=A0"))
	assert.Empty(t, Extract(""))
}

func TestReference_External(t *testing.T) {
	r := Reference{Sheet: "Other", Start: "A1", End: "A1"}
	assert.True(t, r.External("Main"))
	assert.False(t, r.External("other"), "sheet names compare case-insensitively")
	assert.False(t, Reference{Start: "A1", End: "A1"}.External("Main"))
}

func TestReference_CellsCapped(t *testing.T) {
	r := Reference{Start: "A1", End: "Z10000", IsRange: true}
	assert.Len(t, r.Cells(), MaxRangeCells)
}

func TestSplitAddress(t *testing.T) {
	sheet, cell, err := SplitAddress("three_way!$J$2")
	require.NoError(t, err)
	assert.Equal(t, "three_way", sheet)
	assert.Equal(t, "J2", cell)

	sheet, cell, err = SplitAddress("'KPI Board'!b3")
	require.NoError(t, err)
	assert.Equal(t, "KPI Board", sheet)
	assert.Equal(t, "B3", cell)

	for _, bad := range []string{"A1", "!A1", "Sheet!", "Sheet!11"} {
		_, _, err := SplitAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestCoordinateHelpers(t *testing.T) {
	assert.Equal(t, "A1", CellName(0, 0))
	assert.Equal(t, "AA10", CellName(26, 9))
	assert.Equal(t, "C", ColumnName(2))

	col, row, err := ParseCell("$AB$12")
	require.NoError(t, err)
	assert.Equal(t, 27, col)
	assert.Equal(t, 11, row)

	assert.Equal(t, "po!C2:C9", RangeRef("po", 2, 2, 9))
	assert.Equal(t, "'gl 2024'!A2:A2", RangeRef("gl 2024", 0, 2, 2))
}
