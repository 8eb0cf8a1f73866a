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

// Package report produces the plain-text "busiest functions" summary that
// sits alongside the DOT graph: the same sorted-ranking idiom as the
// teacher's coprocessor/developer/profiling stats (a program's cost
// attributed to its functions, most expensive first), applied here to
// worst-case stack depth instead of cycle counts.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jetsetilly/stackbound/internal/callgraph"
)

// Entry is one function's row in the report.
type Entry struct {
	Name       string
	FrameBytes uint64
	FrameKnown bool

	MaxStack     uint64
	MaxStackKind string
}

// TopN returns the n concrete nodes of g with the largest max_stack, ordered
// descending by max_stack and then by name. Synthetic nodes never appear in
// the report; they name a fingerprint, not a function. n <= 0 returns every
// concrete node.
func TopN(g *callgraph.Graph, n int) []Entry {
	var entries []Entry
	for _, node := range g.Nodes {
		if node.Kind != callgraph.Concrete {
			continue
		}
		entries = append(entries, Entry{
			Name:         node.Name,
			FrameBytes:   node.FrameBytes,
			FrameKnown:   node.FrameKnown,
			MaxStack:     node.MaxStack,
			MaxStackKind: node.MaxStackKind,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MaxStack != entries[j].MaxStack {
			return entries[i].MaxStack > entries[j].MaxStack
		}
		return entries[i].Name < entries[j].Name
	})

	if n > 0 && n < len(entries) {
		entries = entries[:n]
	}
	return entries
}

// Write formats entries as a fixed-width plain-text table.
func Write(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		local := "?"
		if e.FrameKnown {
			local = fmt.Sprintf("%d", e.FrameBytes)
		}

		op := ">="
		if e.MaxStackKind == "exact" {
			op = "="
		}

		if _, err := fmt.Fprintf(w, "%-40s local %-8s max %s %d\n", e.Name, local, op, e.MaxStack); err != nil {
			return err
		}
	}
	return nil
}
