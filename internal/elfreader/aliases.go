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

package elfreader

import "sort"

// aliasTable records every symbol name seen at a given address, the way the
// teacher's disassembly/symbols table keyed multiple Entry values by address
// rather than merging them (spec.md §4.2: "recorded as aliases, not merged").
type aliasTable struct {
	byAddr map[uint64][]string
}

func newAliasTable() *aliasTable {
	return &aliasTable{byAddr: make(map[uint64][]string)}
}

func (t *aliasTable) add(addr uint64, name string) {
	for _, n := range t.byAddr[addr] {
		if n == name {
			return
		}
	}
	t.byAddr[addr] = append(t.byAddr[addr], name)
	sort.Strings(t.byAddr[addr])
}

func (t *aliasTable) namesAt(addr uint64) []string {
	names := t.byAddr[addr]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// canonical returns preferred if it names one of the aliases recorded at
// addr, otherwise the lexicographically first alias, otherwise preferred
// itself (addr has no recorded aliases at all, e.g. it came from the
// disassembler only).
func (t *aliasTable) canonical(addr uint64, preferred string) string {
	names := t.byAddr[addr]
	if len(names) == 0 {
		return preferred
	}
	for _, n := range names {
		if n == preferred {
			return preferred
		}
	}
	return names[0]
}
