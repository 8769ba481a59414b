// Package depgraph orders the formula cells of one sheet for evaluation.
//
// Edges run from a referenced cell to the formula cell that reads it.
// Cross-sheet references are collected but never become edges, so cycles
// that span sheets are not detected here.
package depgraph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sheetrelay/internal/formula"
)

// Result is the outcome of sequencing one sheet.
type Result struct {
	SheetID string `json:"sheetId"`

	// Order holds every node that could be ordered. When the graph is
	// cyclic it is a partial order and shorter than NodeCount.
	Order     []string `json:"order"`
	NodeCount int      `json:"nodeCount"`

	Cyclic bool `json:"cyclic"`

	// Cycles lists each strongly connected component that forms a cycle,
	// members in row-major order.
	Cycles [][]string `json:"cycles,omitempty"`

	// External holds references qualified to other sheets, keyed by the
	// formula cell that contains them.
	External map[string][]formula.Reference `json:"external,omitempty"`

	// Failure is set when Cyclic is true.
	Failure *CircularReferenceError `json:"-"`
}

// Indeterminate reports whether downstream consumers must treat the
// sheet's formula state as unknown.
func (r Result) Indeterminate() bool { return r.Cyclic }

// CircularReferenceError names a cyclic sheet. It is returned inside
// Result, never as a Go error from Sequence.
type CircularReferenceError struct {
	SheetID string
	Ordered int
	Nodes   int
	Cycles  [][]string
}

func (e *CircularReferenceError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, "→")
	}
	return fmt.Sprintf("circular reference in sheet %s: ordered %d of %d cells [%s]",
		e.SheetID, e.Ordered, e.Nodes, strings.Join(parts, "; "))
}

type graph struct {
	nodes []string
	succ  map[string][]string
	indeg map[string]int
}

func (g *graph) addNode(n string) {
	if _, ok := g.indeg[n]; ok {
		return
	}
	g.indeg[n] = 0
	g.nodes = append(g.nodes, n)
}

func (g *graph) addEdge(from, to string) {
	g.addNode(from)
	g.addNode(to)
	if slices.Contains(g.succ[from], to) {
		return
	}
	g.succ[from] = append(g.succ[from], to)
	g.indeg[to]++
}

// Sequence builds the intra-sheet dependency graph for formulas (keyed by
// A1 address, text with or without a leading '=') and orders it with
// Kahn's algorithm. Ties break in row-major order so the result is
// deterministic. A cycle never panics and is not an error: the partial
// order is returned with Cyclic set.
func Sequence(sheetID string, formulas map[string]string) Result {
	g := &graph{succ: make(map[string][]string), indeg: make(map[string]int)}
	external := make(map[string][]formula.Reference)

	cells := make([]string, 0, len(formulas))
	for addr := range formulas {
		cells = append(cells, addr)
	}
	sortRowMajor(cells)

	for _, addr := range cells {
		target, err := formula.NormalizeCell(addr)
		if err != nil {
			continue
		}
		g.addNode(target)
		for _, ref := range formula.Extract(formulas[addr]) {
			if ref.External(sheetID) {
				external[target] = append(external[target], ref)
				continue
			}
			for _, src := range ref.Cells() {
				g.addEdge(src, target)
			}
		}
	}

	sortRowMajor(g.nodes)
	for _, n := range g.nodes {
		sortRowMajor(g.succ[n])
	}

	res := Result{SheetID: sheetID, NodeCount: len(g.nodes), Order: kahn(g)}
	if len(external) > 0 {
		res.External = external
	}
	if len(res.Order) < res.NodeCount {
		res.Cyclic = true
		res.Cycles = cyclicComponents(g)
		res.Failure = &CircularReferenceError{
			SheetID: sheetID,
			Ordered: len(res.Order),
			Nodes:   res.NodeCount,
			Cycles:  res.Cycles,
		}
	}
	return res
}

func kahn(g *graph) []string {
	remaining := make(map[string]int, len(g.indeg))
	var queue []string
	for _, n := range g.nodes {
		remaining[n] = g.indeg[n]
		if remaining[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range g.succ[n] {
			remaining[m]--
			if remaining[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	return order
}

func sortRowMajor(cells []string) {
	slices.SortFunc(cells, func(a, b string) int {
		ac, ar, aerr := formula.ParseCell(a)
		bc, br, berr := formula.ParseCell(b)
		if aerr != nil || berr != nil {
			return strings.Compare(a, b)
		}
		if ar != br {
			return ar - br
		}
		return ac - bc
	})
}
