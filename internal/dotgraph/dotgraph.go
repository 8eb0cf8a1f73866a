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

// Package dotgraph renders a built, solved call graph as a Graphviz DOT
// document (spec.md §4.6), using github.com/awalterschulze/gographviz to
// assemble the document rather than hand-formatting DOT syntax.
package dotgraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/jetsetilly/stackbound/internal/callgraph"
	"github.com/jetsetilly/stackbound/internal/solver"
)

const rootName = "callgraph"

// Render produces the DOT text for g. solved must be false when the solver
// was skipped entirely (no .stack_sizes section at all), in which case the
// max line is omitted from every node's label (spec.md §4.6).
func Render(g *callgraph.Graph, solved bool) (string, error) {
	dg := gographviz.NewGraph()
	if err := dg.SetName(rootName); err != nil {
		return "", err
	}
	if err := dg.SetDir(true); err != nil {
		return "", err
	}

	clusterOf, clusterIDs := nonTrivialClusters(g)

	for _, cid := range clusterIDs {
		name := fmt.Sprintf("cluster_%d", cid)
		if err := dg.AddSubGraph(rootName, name, nil); err != nil {
			return "", err
		}
	}

	for _, i := range sortedNodeIndices(g) {
		n := g.Nodes[i]
		parent := rootName
		if cid, ok := clusterOf[i]; ok {
			parent = fmt.Sprintf("cluster_%d", cid)
		}
		if err := dg.AddNode(parent, dotQuote(n.Name), nodeAttrs(n, solved)); err != nil {
			return "", err
		}
	}

	for _, e := range sortedEdges(g) {
		src := dotQuote(g.Nodes[e.From].Name)
		dst := dotQuote(g.Nodes[e.To].Name)
		if err := dg.AddEdge(src, dst, true, nil); err != nil {
			return "", err
		}
	}

	return dg.String(), nil
}

// nonTrivialClusters identifies every SCC that spec.md §4.6 says becomes a
// cluster: size > 1, or a size-1 component with a self-loop.
func nonTrivialClusters(g *callgraph.Graph) (clusterOf map[int]int, ids []int) {
	clusterOf = make(map[int]int)
	for i, comp := range g.SCCs {
		if !isNonTrivial(g, comp) {
			continue
		}
		ids = append(ids, i)
		for _, v := range comp {
			clusterOf[v] = i
		}
	}
	sort.Ints(ids)
	return clusterOf, ids
}

func isNonTrivial(g *callgraph.Graph, comp []int) bool {
	if len(comp) > 1 {
		return true
	}
	v := comp[0]
	for _, e := range g.Edges {
		if e.From == v && e.To == v {
			return true
		}
	}
	return false
}

func sortedNodeIndices(g *callgraph.Graph) []int {
	idx := make([]int, len(g.Nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return g.Nodes[idx[a]].Name < g.Nodes[idx[b]].Name
	})
	return idx
}

func sortedEdges(g *callgraph.Graph) []callgraph.Edge {
	edges := make([]callgraph.Edge, len(g.Edges))
	copy(edges, g.Edges)
	sort.Slice(edges, func(a, b int) bool {
		ea, eb := edges[a], edges[b]
		fromA, fromB := g.Nodes[ea.From].Name, g.Nodes[eb.From].Name
		if fromA != fromB {
			return fromA < fromB
		}
		return g.Nodes[ea.To].Name < g.Nodes[eb.To].Name
	})
	return edges
}

func nodeAttrs(n callgraph.Node, solved bool) map[string]string {
	if n.Kind == callgraph.Synthetic {
		return map[string]string{
			"style": "dashed",
			"label": dotQuote(n.Fingerprint),
		}
	}

	var lines []string
	lines = append(lines, n.Name)
	if n.FrameKnown {
		lines = append(lines, "local = "+strconv.FormatUint(n.FrameBytes, 10))
	}
	if solved {
		op := ">="
		if n.MaxStackKind == solver.Exact {
			op = "="
		}
		lines = append(lines, "max "+op+" "+strconv.FormatUint(n.MaxStack, 10))
	}

	return map[string]string{"label": dotQuote(strings.Join(lines, `\n`))}
}

// dotQuote wraps s in double quotes, escaping any embedded quote, for use as
// either a DOT identifier or an attribute value (spec.md §4.6: "Node
// identifiers are escaped for DOT").
func dotQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
