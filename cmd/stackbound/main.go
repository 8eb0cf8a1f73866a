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

// Command stackbound is the thin, explicitly non-core front end for the
// analysis pipeline: parse IR, read ELF, disassemble where eligible, build
// the call graph, solve stack bounds, and emit a DOT document. Option
// parsing stays on the standard library's flag package; the teacher's own
// modalflag front end exists to switch an emulator between interactive and
// headless modes, a distinction this batch tool has no use for.
package main

import (
	"debug/elf"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jetsetilly/stackbound/category"
	"github.com/jetsetilly/stackbound/curated"
	"github.com/jetsetilly/stackbound/internal/armscan"
	"github.com/jetsetilly/stackbound/internal/callgraph"
	"github.com/jetsetilly/stackbound/internal/dotgraph"
	"github.com/jetsetilly/stackbound/internal/elfreader"
	"github.com/jetsetilly/stackbound/internal/ir"
	"github.com/jetsetilly/stackbound/internal/report"
	"github.com/jetsetilly/stackbound/internal/solver"
	"github.com/jetsetilly/stackbound/internal/warn"
)

func main() {
	irPath := flag.String("ir", "", "path to the linked program's textual LLVM IR")
	elfPath := flag.String("elf", "", "path to the linked ELF object")
	target := flag.String("target", "", "target triple, e.g. thumbv7m-none-eabi")
	start := flag.String("start", "", "optional start symbol; restricts the graph to what it can reach")
	out := flag.String("o", "", "output path for the DOT document (default stdout)")
	top := flag.Int("top", 20, "number of functions to list in the stderr summary, 0 for all")
	flag.Parse()

	if *irPath == "" || *elfPath == "" {
		fmt.Fprintln(os.Stderr, "stackbound: -ir and -elf are required")
		os.Exit(2)
	}
	if strings.TrimSpace(*target) != *target {
		fmt.Fprintf(os.Stderr, "stackbound: %v\n", curated.Errorf(category.CannotReadTarget, fmt.Errorf("%q is not a bare triple", *target)))
		os.Exit(2)
	}

	if err := run(*irPath, *elfPath, *target, *start, *out, *top); err != nil {
		fmt.Fprintf(os.Stderr, "stackbound: %v\n", err)
		os.Exit(1)
	}
}

func run(irPath, elfPath, target, start, out string, top int) error {
	warnings := warn.NewCollector()

	src, err := os.ReadFile(irPath)
	if err != nil {
		return fmt.Errorf("cannot read IR file: %w", err)
	}

	mod, err := ir.Parse(string(src), warnings)
	if err != nil {
		return err
	}

	r, err := elfreader.Open(elfPath)
	if err != nil {
		return err
	}
	defer r.Close()

	stackSizes, err := r.StackSizes()
	if err != nil {
		return err
	}

	elfAddr, addrToName := symbolMaps(r)

	var disasm map[string]callgraph.DisasmResult
	if eligibleForDisassembly(r, target) {
		disasm = disassembleLiveFunctions(r, mod, elfAddr, warnings)
	}

	b := &callgraph.Builder{
		Module:     mod,
		ELFAddr:    elfAddr,
		StackSizes: stackSizes,
		Disasm:     disasm,
		AddrToName: addrToName,
		Start:      start,
		Warnings:   warnings,
	}
	g := b.Build()

	solved := len(stackSizes) > 0
	if solved {
		solver.Solve(g)
	}

	doc, err := dotgraph.Render(g, solved)
	if err != nil {
		return err
	}

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("cannot write output: %w", err)
		}
		defer f.Close()
		w = f
	}
	fmt.Fprintln(w, doc)

	for _, line := range warnings.Sorted() {
		fmt.Fprintln(os.Stderr, line)
	}

	if solved {
		fmt.Fprintln(os.Stderr, "---")
		if err := report.Write(os.Stderr, report.TopN(g, top)); err != nil {
			return fmt.Errorf("cannot write report: %w", err)
		}
	}

	return nil
}

// symbolMaps builds the name-to-address and address-to-name views the
// builder and disassembler need from the ELF's defined function symbols,
// canonicalising aliases the way disassembly/symbols does against whichever
// name is already in use (spec.md §4.2).
func symbolMaps(r *elfreader.Reader) (elfAddr map[string]uint64, addrToName map[uint64]string) {
	elfAddr = make(map[string]uint64)
	addrToName = make(map[uint64]string)

	for _, sym := range r.Symbols() {
		elfAddr[sym.Name] = sym.Addr
		if _, ok := addrToName[sym.Addr]; !ok {
			addrToName[sym.Addr] = r.Canonical(sym.Addr, sym.Name)
		}
	}

	return elfAddr, addrToName
}

// eligibleForDisassembly implements spec.md §4.3's "invoked only for ARM
// Cortex-M targets": the ELF machine type must be EM_ARM and the caller's
// target triple, if given, must not name something else entirely.
func eligibleForDisassembly(r *elfreader.Reader, target string) bool {
	if r.Machine() != elf.EM_ARM {
		return false
	}
	if target == "" {
		return true
	}
	t := strings.ToLower(target)
	return strings.Contains(t, "arm") || strings.Contains(t, "thumb")
}

// disassembleLiveFunctions runs armscan over every function's code bytes
// that the ELF defines an address and size for, keyed by name: first the
// IR-defined functions (mod.Order), then any ELF symbol with no IR
// counterpart at all - hand-written assembly or a precompiled routine the
// linker pulled in without ever going through this compilation unit's IR
// (spec.md §2's disassembler row, §4.4 step 1's "ELF-defined symbols with no
// IR"). Functions with no ELF address, or whose bytes aren't covered by a
// loaded section, are silently skipped; the builder treats an absent Disasm
// entry the same as a target with no disassembler at all.
func disassembleLiveFunctions(r *elfreader.Reader, mod *ir.Module, elfAddr map[string]uint64, warnings *warn.Collector) map[string]callgraph.DisasmResult {
	out := make(map[string]callgraph.DisasmResult)

	sizes := make(map[string]uint64, len(r.Symbols()))
	for _, sym := range r.Symbols() {
		sizes[sym.Name] = sym.Size
	}

	disasmOne := func(name string) {
		if _, done := out[name]; done {
			return
		}
		addr, ok := elfAddr[name]
		if !ok {
			return
		}
		size := sizes[name]
		if size == 0 {
			return
		}

		code, ok := r.BytesAt(addr, size)
		if !ok {
			return
		}

		res := armscan.Scan(code, addr, r.ByteOrder())
		if res.Anomaly {
			warnings.Add(warn.KindDisasmAnomaly, name, "scan stopped before the end of the function body")
		}
		out[name] = callgraph.DisasmResult{
			FrameBytes: res.FrameBytes,
			Exact:      res.Exact,
			Targets:    res.Targets,
		}
	}

	for _, name := range mod.Order {
		disasmOne(name)
	}
	for name := range elfAddr {
		if _, inIR := mod.Funcs[name]; inIR {
			continue
		}
		disasmOne(name)
	}

	return out
}
