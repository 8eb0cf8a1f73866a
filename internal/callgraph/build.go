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

import (
	"sort"
	"strings"

	"github.com/jetsetilly/stackbound/internal/ir"
	"github.com/jetsetilly/stackbound/internal/warn"
)

// DisasmResult is the subset of an armscan.Result the builder needs for one
// function, kept decoupled from the armscan/elfreader packages so the
// builder can be driven entirely from values in a test without touching ELF
// files or real machine code.
type DisasmResult struct {
	FrameBytes uint64
	Exact      bool

	// Targets holds absolute addresses of direct branches recovered from the
	// machine code, used to complement the IR's own call list (spec.md §4.3:
	// "needed for intrinsics that lower to runtime-library calls only visible
	// at the machine-code level").
	Targets []uint64
}

// Builder holds every input the call-graph algorithm (spec.md §4.4) needs.
type Builder struct {
	Module *ir.Module

	// ELFAddr maps a function name to its ELF-defined virtual address, for
	// every symbol the ELF reader found (spec.md §4.4 step 1's "ELF-defined
	// symbols").
	ELFAddr map[string]uint64

	// StackSizes is the decoded .stack_sizes map, address to frame bytes.
	StackSizes map[uint64]uint64

	// Disasm holds disassembler results for eligible (ARM Cortex-M) functions
	// only, keyed by function name. Absent for targets where the disassembler
	// was never invoked.
	Disasm map[string]DisasmResult

	// AddrToName resolves an absolute address recovered by the
	// disassembler (DisasmResult.Targets) back to the function name occupying
	// it, so those call edges can be folded in alongside the IR's direct
	// calls.
	AddrToName map[uint64]string

	// Overrides is the per-function frame override hook (highest
	// precedence): override > disassembler > stack_sizes > unknown.
	Overrides map[string]uint64

	// Start is the optional start symbol; if empty, every node is kept.
	Start string

	Warnings *warn.Collector
}

func (b *Builder) warn(kind, subject, detail string) {
	if b.Warnings == nil {
		return
	}
	b.Warnings.Add(kind, subject, detail)
}

// Build runs the eight-step algorithm of spec.md §4.4 and returns the
// resulting graph.
func (b *Builder) Build() *Graph {
	g := newGraph()

	live := b.liveSet()
	for _, name := range live {
		g.indexOf(name, func() Node {
			fn := b.Module.Funcs[name]
			n := Node{Name: name, Kind: Concrete}
			if fn != nil {
				n.Fingerprint = fn.Fingerprint
				n.AddressTaken = fn.AddressTaken
			}
			return n
		})
	}

	b.attachFrames(g, live)
	b.addDirectEdges(g, live)
	b.addIntrinsicEdges(g, live)
	b.addIndirectEdges(g, live)

	if b.Start != "" {
		b.filterToReachable(g)
	}

	ComputeSCCs(g)

	return g
}

// liveSet computes spec.md §4.4 step 1: the intersection of IR-defined
// functions with ELF-defined symbols, plus ELF-defined symbols with no IR but
// with disassembler-derived frame info.
func (b *Builder) liveSet() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, name := range b.Module.Order {
		fn := b.Module.Funcs[name]
		if !fn.Defined {
			continue
		}
		if _, ok := b.ELFAddr[name]; ok {
			add(name)
		}
	}

	for name := range b.ELFAddr {
		if _, ok := b.Module.Funcs[name]; ok {
			continue
		}
		if _, ok := b.Disasm[name]; ok {
			add(name)
		}
	}

	sort.Strings(out)
	return out
}

// attachFrames implements spec.md §4.4 step 2 and the override precedence
// described in spec.md §4.3 and §9 (override > disassembler > stack_sizes >
// unknown).
func (b *Builder) attachFrames(g *Graph, live []string) {
	for _, name := range live {
		i, _ := g.lookup(name)
		node := &g.Nodes[i]

		if v, ok := b.Overrides[name]; ok {
			node.FrameBytes = v
			node.FrameKnown = true
			continue
		}

		addr, hasAddr := b.ELFAddr[name]
		stackSz, hasStackSz := uint64(0), false
		if hasAddr {
			stackSz, hasStackSz = b.StackSizes[addr]
		}

		if d, ok := b.Disasm[name]; ok {
			triggeredZero := (!hasStackSz || stackSz == 0) && d.FrameBytes > 0
			triggeredOutlined := hasStackSz && d.FrameBytes > stackSz
			if triggeredZero || triggeredOutlined {
				node.FrameBytes = d.FrameBytes
				node.FrameKnown = true
				b.warn(warn.KindFrameOverride, name, "disassembly shows a larger frame than LLVM reported")
				continue
			}
		}

		if hasStackSz {
			node.FrameBytes = stackSz
			node.FrameKnown = true
			continue
		}

		b.warn(warn.KindMissingStackSize, name, "")
	}
}

// addDirectEdges implements spec.md §4.4 step 3, plus folding in any
// disassembler-recovered direct branch targets that land on a live function
// (step 3 and step 4's machine-code complement).
func (b *Builder) addDirectEdges(g *Graph, live []string) {
	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}

	for _, name := range live {
		fn, ok := b.Module.Funcs[name]
		if !ok {
			continue
		}
		from, _ := g.lookup(name)

		for _, cs := range fn.CallSites {
			if cs.Indirect {
				continue
			}
			if _, isIntrinsic := loweringsFor(cs.Callee); isIntrinsic {
				continue // handled by addIntrinsicEdges
			}
			if !liveSet[cs.Callee] {
				b.warn(warn.KindDroppedEdge, cs.Callee, "called from "+name)
				continue
			}
			to, _ := g.lookup(cs.Callee)
			g.addEdge(from, to)
		}

		if d, ok := b.Disasm[name]; ok {
			for _, addr := range d.Targets {
				target, ok := b.AddrToName[addr]
				if !ok || !liveSet[target] {
					continue
				}
				to, _ := g.lookup(target)
				g.addEdge(from, to)
			}
		}
	}
}

// addIntrinsicEdges implements spec.md §4.4 step 4.
func (b *Builder) addIntrinsicEdges(g *Graph, live []string) {
	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}

	for _, name := range live {
		fn, ok := b.Module.Funcs[name]
		if !ok {
			continue
		}
		from, _ := g.lookup(name)

		for _, cs := range fn.CallSites {
			if cs.Indirect {
				continue
			}
			candidates, isIntrinsic := loweringsFor(cs.Callee)
			if !isIntrinsic {
				continue
			}
			if len(candidates) == 0 {
				// a pure intrinsic adds no edge; any other llvm.* name has no
				// lowering-table entry and is warned about once per name.
				pure := false
				for _, p := range pureIntrinsicPrefixes {
					if strings.HasPrefix(cs.Callee, p) {
						pure = true
					}
				}
				if !pure {
					b.warn(warn.KindUnknownIntrinsic, cs.Callee, "no lowering table entry")
				}
				continue
			}

			present := presentCandidates(candidates, liveSet)

			if d, ok := b.Disasm[name]; ok {
				if narrowed := narrowByDisassembly(present, d.Targets, b.AddrToName); narrowed != nil {
					present = narrowed
				}
			}

			if len(present) == 0 {
				b.warn(warn.KindUnknownIntrinsic, cs.Callee, "no lowering present in live set")
				continue
			}
			for _, cand := range present {
				to, _ := g.lookup(cand)
				g.addEdge(from, to)
			}
		}
	}
}

func presentCandidates(candidates []string, liveSet map[string]bool) []string {
	var out []string
	for _, c := range candidates {
		if liveSet[c] {
			out = append(out, c)
		}
	}
	return out
}

// narrowByDisassembly implements the Cortex-M refinement in spec.md §4.4
// step 4: "when the machine-code scan shows a BL to one of these symbols, add
// only that edge". Returns nil (meaning "don't narrow") if none of the
// recovered targets name a candidate.
func narrowByDisassembly(candidates []string, targets []uint64, addrToName map[uint64]string) []string {
	candidateSet := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		candidateSet[c] = true
	}

	var narrowed []string
	seen := make(map[string]bool)
	for _, addr := range targets {
		name, ok := addrToName[addr]
		if !ok || !candidateSet[name] || seen[name] {
			continue
		}
		seen[name] = true
		narrowed = append(narrowed, name)
	}
	return narrowed
}

// addIndirectEdges implements spec.md §4.4 step 6, including the
// formatting-API hack.
func (b *Builder) addIndirectEdges(g *Graph, live []string) {
	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}

	// group indirect call sites by fingerprint, recording the calling
	// function for each.
	byFingerprint := make(map[string][]string)
	for _, name := range live {
		fn, ok := b.Module.Funcs[name]
		if !ok {
			continue
		}

		if handlers, hacked := formattingAPIHandlers(name); hacked {
			from, _ := g.lookup(name)
			for _, h := range handlers {
				if !liveSet[h] {
					continue
				}
				to, _ := g.lookup(h)
				g.addEdge(from, to)
			}
			continue
		}

		for _, cs := range fn.CallSites {
			if !cs.Indirect {
				continue
			}
			byFingerprint[cs.Fingerprint] = append(byFingerprint[cs.Fingerprint], name)
		}
	}

	fingerprints := make([]string, 0, len(byFingerprint))
	for fp := range byFingerprint {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	for _, fp := range fingerprints {
		synth := g.indexOf(fp, func() Node {
			return Node{
				Name:        fp,
				Kind:        Synthetic,
				Fingerprint: fp,
				FrameKnown:  true,
			}
		})

		callers := byFingerprint[fp]
		sort.Strings(callers)
		for _, caller := range callers {
			from, _ := g.lookup(caller)
			g.addEdge(from, synth)
		}

		var targets []string
		for _, name := range live {
			n, _ := g.lookup(name)
			if g.Nodes[n].Kind != Concrete {
				continue
			}
			if !g.Nodes[n].AddressTaken {
				continue
			}
			if g.Nodes[n].Fingerprint != fp {
				continue
			}
			targets = append(targets, name)
		}
		sort.Strings(targets)
		for _, t := range targets {
			to, _ := g.lookup(t)
			g.addEdge(synth, to)
		}
		if len(targets) == 0 {
			b.warn(warn.KindUnresolvedIndirect, fp, "")
		}
	}
}

// filterToReachable implements spec.md §4.4 step 7.
func (b *Builder) filterToReachable(g *Graph) {
	start, ok := g.lookup(b.Start)
	if !ok {
		return
	}

	reachable := make(map[int]bool)
	stack := []int{start}
	reachable[start] = true
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, succ := range g.Successors(n) {
			if !reachable[succ] {
				reachable[succ] = true
				stack = append(stack, succ)
			}
		}
	}

	keptIndex := make(map[int]int)
	var nodes []Node
	for i, n := range g.Nodes {
		if !reachable[i] {
			continue
		}
		keptIndex[i] = len(nodes)
		nodes = append(nodes, n)
	}

	var edges []Edge
	for _, e := range g.Edges {
		if !reachable[e.From] || !reachable[e.To] {
			continue
		}
		edges = append(edges, Edge{From: keptIndex[e.From], To: keptIndex[e.To]})
	}

	byName := make(map[string]int, len(nodes))
	for i, n := range nodes {
		byName[n.Name] = i
	}

	g.Nodes = nodes
	g.Edges = edges
	g.byName = byName
}
