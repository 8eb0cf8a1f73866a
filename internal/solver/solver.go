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

// Package solver computes, for every concrete node of a call graph, the
// worst-case stack depth reachable through it and whether that figure is
// exact or only a lower bound.
//
// The graph arrives with its strongly connected components already
// identified (internal/callgraph.ComputeSCCs) in an order where every
// component is listed after everything it calls. Solve walks that order once,
// the same condense-then-traverse-the-DAG shape the teacher uses for its
// rewind package's flat, index-addressed state history rather than a
// recursive walk over a call tree.
package solver

import "github.com/jetsetilly/stackbound/internal/callgraph"

// Bound kinds, per spec.md §4.5.
const (
	Exact = "exact"
	Lower = "lower"
)

// Solve fills in MaxStack and MaxStackKind for every node of g, in place.
func Solve(g *callgraph.Graph) {
	for _, comp := range g.SCCs {
		if len(comp) == 1 && !hasSelfLoop(g, comp[0]) {
			solveSingle(g, comp[0])
		} else {
			solveSCC(g, comp)
		}
	}
}

func hasSelfLoop(g *callgraph.Graph, v int) bool {
	for _, e := range g.Edges {
		if e.From == v && e.To == v {
			return true
		}
	}
	return false
}

// solveSingle handles a trivial, non-self-looping component: exactly one
// node whose value depends only on its own frame and its successors' already
// computed values.
func solveSingle(g *callgraph.Graph, v int) {
	node := &g.Nodes[v]

	local := node.FrameBytes
	kind := Exact
	if !node.FrameKnown {
		kind = Lower
	}

	succs := g.Successors(v)

	if len(succs) == 0 && node.Kind == callgraph.Synthetic {
		// an indirect call site whose fingerprint matched no address-taken
		// function: spec.md §4.5 "its max_stack is unknown and propagates as
		// lower".
		node.MaxStack = 0
		node.MaxStackKind = Lower
		return
	}

	var maxSucc uint64
	succKind := Exact
	for _, to := range succs {
		s := &g.Nodes[to]
		if s.MaxStack > maxSucc {
			maxSucc = s.MaxStack
		}
		if s.MaxStackKind == Lower {
			succKind = Lower
		}
	}

	node.MaxStack = local + maxSucc
	if kind == Lower || succKind == Lower {
		node.MaxStackKind = Lower
	} else {
		node.MaxStackKind = Exact
	}
}

// solveSCC handles a non-trivial component (size > 1, or a single node with a
// self-loop): spec.md §4.5's conservative rule, always a lower bound.
func solveSCC(g *callgraph.Graph, comp []int) {
	inComp := make(map[int]bool, len(comp))
	for _, v := range comp {
		inComp[v] = true
	}

	var maxLocal uint64
	for _, v := range comp {
		if g.Nodes[v].FrameBytes > maxLocal {
			maxLocal = g.Nodes[v].FrameBytes
		}
	}

	var maxExternal uint64
	for _, v := range comp {
		for _, to := range g.Successors(v) {
			if inComp[to] {
				continue
			}
			if g.Nodes[to].MaxStack > maxExternal {
				maxExternal = g.Nodes[to].MaxStack
			}
		}
	}

	total := maxLocal + maxExternal
	for _, v := range comp {
		g.Nodes[v].MaxStack = total
		g.Nodes[v].MaxStackKind = Lower
	}
}
