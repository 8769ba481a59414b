package depgraph

// cyclicComponents finds strongly connected components using Tarjan's
// algorithm and keeps those that form a cycle: size > 1, or a single
// node with a self-loop. Components come out sorted row-major, ordered
// by their first member.
func cyclicComponents(g *graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succ[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 || hasSelfLoop(g, scc[0]) {
				sortRowMajor(scc)
				sccs = append(sccs, scc)
			}
		}
	}

	// g.nodes is row-major, so traversal is deterministic
	for _, n := range g.nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}

	sortComponents(sccs)
	return sccs
}

func hasSelfLoop(g *graph, n string) bool {
	for _, m := range g.succ[n] {
		if m == n {
			return true
		}
	}
	return false
}

func sortComponents(sccs [][]string) {
	firsts := make([]string, len(sccs))
	for i, c := range sccs {
		firsts[i] = c[0]
	}
	sortRowMajor(firsts)
	pos := make(map[string]int, len(firsts))
	for i, f := range firsts {
		pos[f] = i
	}
	out := make([][]string, len(sccs))
	for _, c := range sccs {
		out[pos[c[0]]] = c
	}
	copy(sccs, out)
}
