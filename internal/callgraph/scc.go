// This file is part of Gopher2600.
//
// Gopher2600 is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Gopher2600 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Gopher2600.  If not, see <https://www.gnu.org/licenses/>.

package callgraph

// ComputeSCCs runs Tarjan's algorithm over g and fills in g.SCCs and each
// node's SCC field (spec.md §4.4 step 8). The recursive formulation of
// Tarjan's algorithm is rewritten here as an explicit stack machine: a
// whole-program call graph can be deep enough (long call chains through
// thousands of functions) that a naive recursive walk risks exhausting the
// goroutine stack, the same reasoning the teacher applies to its rewind and
// profiling packages when it prefers index-addressed slices over recursive
// pointer structures.
func ComputeSCCs(g *Graph) {
	n := len(g.Nodes)
	if n == 0 {
		return
	}

	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var stack []int
	nextIndex := 0
	var sccs [][]int

	type frame struct {
		v       int
		succIdx int
		succs   []int
	}

	for start := 0; start < n; start++ {
		if index[start] != -1 {
			continue
		}

		var call []frame
		call = append(call, frame{v: start, succs: g.Successors(start)})
		index[start] = nextIndex
		low[start] = nextIndex
		nextIndex++
		stack = append(stack, start)
		onStack[start] = true

		for len(call) > 0 {
			top := &call[len(call)-1]

			if top.succIdx < len(top.succs) {
				w := top.succs[top.succIdx]
				top.succIdx++

				if index[w] == -1 {
					index[w] = nextIndex
					low[w] = nextIndex
					nextIndex++
					stack = append(stack, w)
					onStack[w] = true
					call = append(call, frame{v: w, succs: g.Successors(w)})
				} else if onStack[w] {
					if index[w] < low[top.v] {
						low[top.v] = index[w]
					}
				}
				continue
			}

			// finished visiting all successors of top.v
			v := top.v
			call = call[:len(call)-1]

			if len(call) > 0 {
				parent := &call[len(call)-1]
				if low[v] < low[parent.v] {
					low[parent.v] = low[v]
				}
			}

			if low[v] == index[v] {
				var comp []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				sccs = append(sccs, comp)
			}
		}
	}

	// Tarjan naturally yields components in reverse topological order
	// already (a component is only closed off once every node it can reach
	// has been closed off first), which is exactly the order the solver
	// needs to consume them in (spec.md §4.5: "traverse in reverse
	// topological order").
	g.SCCs = sccs
	for i, comp := range sccs {
		for _, v := range comp {
			g.Nodes[v].SCC = i
		}
	}
}
