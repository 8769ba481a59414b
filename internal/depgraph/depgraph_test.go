package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_Acyclic(t *testing.T) {
	res := Sequence("calc", map[string]string{
		"C1": "=A1+B1",
		"D1": "=C1*2",
	})

	assert.False(t, res.Cyclic)
	assert.Nil(t, res.Failure)
	assert.Equal(t, res.NodeCount, len(res.Order))
	assert.Equal(t, []string{"A1", "B1", "C1", "D1"}, res.Order)
}

func TestSequence_TwoCellCycle(t *testing.T) {
	res := Sequence("calc", map[string]string{
		"A1": "=B1",
		"B1": "=A1",
	})

	assert.True(t, res.Cyclic)
	assert.True(t, res.Indeterminate())
	assert.Less(t, len(res.Order), res.NodeCount)
	require.NotNil(t, res.Failure)
	assert.Equal(t, [][]string{{"A1", "B1"}}, res.Cycles)
	assert.Contains(t, res.Failure.Error(), "circular reference in sheet calc")
}

func TestSequence_PartialOrderKept(t *testing.T) {
	res := Sequence("calc", map[string]string{
		"B1": "=A1",
		"C1": "=D1",
		"D1": "=C1",
		"E1": "=C1",
	})

	assert.True(t, res.Cyclic)
	assert.Equal(t, []string{"A1", "B1"}, res.Order)
	assert.Equal(t, 5, res.NodeCount)
	assert.Equal(t, [][]string{{"C1", "D1"}}, res.Cycles, "E1 is blocked but not part of the cycle")
}

func TestSequence_SelfReference(t *testing.T) {
	res := Sequence("calc", map[string]string{"A1": "=A1+1"})
	assert.True(t, res.Cyclic)
	assert.Equal(t, [][]string{{"A1"}}, res.Cycles)
	assert.Empty(t, res.Order)
}

func TestSequence_RangeExpansion(t *testing.T) {
	res := Sequence("calc", map[string]string{"A4": "=SUM(A1:A3)"})
	assert.False(t, res.Cyclic)
	assert.Equal(t, []string{"A1", "A2", "A3", "A4"}, res.Order)
}

func TestSequence_ExternalReferencesExcluded(t *testing.T) {
	res := Sequence("calc", map[string]string{
		"A1": "=other!B1",
		"B1": "=calc!A1",
	})

	assert.False(t, res.Cyclic, "the qualified self reference is intra-sheet, the other one is external")
	assert.Equal(t, []string{"A1", "B1"}, res.Order)
	require.Contains(t, res.External, "A1")
	assert.Equal(t, "other", res.External["A1"][0].Sheet)
}

func TestSequence_Deterministic(t *testing.T) {
	formulas := map[string]string{
		"B2": "=A1", "A2": "=A1", "C1": "=A1", "B1": "=A1",
	}
	first := Sequence("s", formulas)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first.Order, Sequence("s", formulas).Order)
	}
	assert.Equal(t, []string{"A1", "B1", "C1", "A2", "B2"}, first.Order)
}

func TestSequence_Empty(t *testing.T) {
	res := Sequence("s", nil)
	assert.False(t, res.Cyclic)
	assert.Zero(t, res.NodeCount)
	assert.Empty(t, res.Order)
}
