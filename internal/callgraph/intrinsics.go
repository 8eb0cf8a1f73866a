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

import "strings"

// intrinsicLowering maps an LLVM intrinsic name prefix to the set of
// concrete runtime symbols it can lower to on an ARM EABI target. Kept as a
// literal table, not buried in a chain of string comparisons, per spec.md §9's
// requirement that the lowering rule stay declarative and inspectable.
type intrinsicLowering struct {
	prefix     string
	candidates []string
}

var intrinsicLoweringTable = []intrinsicLowering{
	{"llvm.memcpy.", []string{"__aeabi_memcpy", "__aeabi_memcpy4", "__aeabi_memcpy8", "memcpy"}},
	{"llvm.memmove.", []string{"__aeabi_memmove", "__aeabi_memmove4", "__aeabi_memmove8", "memmove"}},
	{"llvm.memset.", []string{"__aeabi_memset", "__aeabi_memset4", "__aeabi_memset8", "memset"}},
}

// pureIntrinsicPrefixes lists intrinsic families that never lower to a call
// edge: they either expand inline or have no runtime-visible side effect on
// the stack (spec.md §4.4 step 4: "The llvm.abs.* family and similarly pure
// intrinsics add no edges").
var pureIntrinsicPrefixes = []string{
	"llvm.abs.",
	"llvm.smax.", "llvm.smin.", "llvm.umax.", "llvm.umin.",
	"llvm.ctlz.", "llvm.cttz.", "llvm.ctpop.",
	"llvm.fabs.", "llvm.sqrt.",
	"llvm.dbg.",
	"llvm.lifetime.",
}

// loweringsFor returns the candidate runtime symbols for an intrinsic name,
// and whether name was recognised as an intrinsic at all (as opposed to an
// ordinary declared function that merely starts with "llvm.").
func loweringsFor(name string) (candidates []string, isIntrinsic bool) {
	if !strings.HasPrefix(name, "llvm.") {
		return nil, false
	}
	for _, p := range pureIntrinsicPrefixes {
		if strings.HasPrefix(name, p) {
			return nil, true
		}
	}
	for _, l := range intrinsicLoweringTable {
		if strings.HasPrefix(name, l.prefix) {
			return l.candidates, true
		}
	}
	return nil, true
}

// formattingAPIHack lists the name patterns for the compiler's formatting
// machinery (e.g. a printf-family implementation built around a
// fingerprint-erased "%v"-style dispatch table) whose fingerprint the parser
// cannot usefully recover: every format-spec handler is reached through the
// same type-erased function-pointer shape, so ordinary fingerprint matching
// would wire every one of them to every formatting call site. Per spec.md
// §4.4 step 6 ("Formatting-API hack"), the resolution for call sites whose
// caller name matches one of these prefixes is hard-coded to the paired
// handler set instead of trusting fingerprint matching.
type formattingAPIHack struct {
	callerPrefix string
	handlers     []string
}

var formattingAPIHackTable = []formattingAPIHack{
	{
		callerPrefix: "__printf_",
		handlers: []string{
			"__printf_fmt_int",
			"__printf_fmt_str",
			"__printf_fmt_float",
			"__printf_fmt_ptr",
		},
	},
}

func formattingAPIHandlers(callerName string) ([]string, bool) {
	for _, h := range formattingAPIHackTable {
		if strings.HasPrefix(callerName, h.callerPrefix) {
			return h.handlers, true
		}
	}
	return nil, false
}
