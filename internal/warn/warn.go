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

// Package warn collects the non-fatal diagnostics produced while building a
// call graph: missing stack-size info, frame overrides, unresolved indirect
// calls, dropped edges, and so on. Every phase of the pipeline is a total
// function over its inputs (spec.md §7) so nothing here is ever fatal; a
// Collector just records each distinct cause once.
package warn

import (
	"fmt"
	"sort"

	"github.com/jetsetilly/stackbound/logger"
)

// Collector deduplicates warnings by (kind, subject), as required by the
// "Propagation policy" in spec.md §7: "Warnings are deduplicated by (kind,
// subject)".
type Collector struct {
	seen map[key]bool
	log  []string
}

type key struct {
	kind    string
	subject string
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[key]bool)}
}

// Add records a warning of the given kind about subject, unless that exact
// (kind, subject) pair has already been recorded. detail is free text
// appended to the message.
func (c *Collector) Add(kind, subject, detail string) {
	k := key{kind: kind, subject: subject}
	if c.seen[k] {
		return
	}
	c.seen[k] = true

	msg := fmt.Sprintf("%s: %s", kind, subject)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	c.log = append(c.log, msg)
	logger.Log("stackbound", msg)
}

// Addf is like Add but builds detail with fmt.Sprintf.
func (c *Collector) Addf(kind, subject, format string, args ...interface{}) {
	c.Add(kind, subject, fmt.Sprintf(format, args...))
}

// All returns every distinct warning recorded so far, in the order they were
// first added.
func (c *Collector) All() []string {
	out := make([]string, len(c.log))
	copy(out, c.log)
	return out
}

// Sorted returns every distinct warning recorded so far, sorted
// lexicographically. Useful for tests and for any output mode that wants
// stable ordering independent of pipeline traversal order.
func (c *Collector) Sorted() []string {
	out := c.All()
	sort.Strings(out)
	return out
}

// Len returns the number of distinct warnings recorded.
func (c *Collector) Len() int {
	return len(c.log)
}

// Warning kinds. Kept as a table, not buried in call sites, so that the
// pipeline's warning vocabulary stays in one place (spec.md §6's "Zero or
// more warnings on standard error" list maps directly to these).
const (
	KindMissingStackSize  = "missing stack-size info"
	KindInlineAsm         = "inline assembly assumed zero stack"
	KindFrameOverride     = "overriding LLVM frame size"
	KindUnresolvedIndirect = "unresolved indirect call"
	KindDroppedEdge       = "dropped edge to symbol missing from ELF"
	KindUnknownOpcode     = "unknown IR opcode"
	KindUnknownIntrinsic  = "unknown intrinsic"
	KindDisasmAnomaly     = "disassembly anomaly"
)
