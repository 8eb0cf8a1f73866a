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

package ir

import (
	"regexp"
	"strings"

	"github.com/jetsetilly/stackbound/category"
	"github.com/jetsetilly/stackbound/curated"
	"github.com/jetsetilly/stackbound/internal/warn"
)

// linkageAndAttrWords are tokens that can precede a return type in a
// define/declare line, or precede a callee in a call/invoke instruction,
// without themselves being part of the signature.
var linkageAndAttrWords = map[string]bool{
	"define": true, "declare": true,
	"external": true, "internal": true, "private": true, "linkonce": true,
	"linkonce_odr": true, "weak": true, "weak_odr": true, "common": true,
	"appending": true, "dso_local": true, "dso_preemptable": true,
	"hidden": true, "protected": true, "local_unnamed_addr": true,
	"unnamed_addr": true, "tail": true, "musttail": true, "notail": true,
	"ccc": true, "fastcc": true, "coldcc": true, "cc": true,
	"noundef": true, "zeroext": true, "signext": true, "inreg": true,
	"nonnull": true, "dereferenceable": true,
}

var (
	reDefineOrDeclare = regexp.MustCompile(`^\s*(define|declare)\b`)
	reFuncName        = regexp.MustCompile(`@([A-Za-z0-9_.$\\]+)\s*\(`)
	reGlobalFuncRef   = regexp.MustCompile(`@([A-Za-z0-9_.$\\]+)`)
	reCallOrInvoke    = regexp.MustCompile(`\b(call|invoke)\b`)
	reInvokeTail      = regexp.MustCompile(`\bto\s+label\s+%[\w.$]+(\s+unwind\s+label\s+%[\w.$]+)?\s*$`)
	reTrailingAt      = regexp.MustCompile(`@([A-Za-z0-9_.$\\]+)\s*$`)
	reTrailingPct     = regexp.MustCompile(`%[A-Za-z0-9_.$]+\s*$`)
	reBitcastTo       = regexp.MustCompile(`@([A-Za-z0-9_.$\\]+)\s+to\b`)
	reStoreFuncPtr    = regexp.MustCompile(`^\s*store\b.*@([A-Za-z0-9_.$\\]+)`)
	reGlobalLine      = regexp.MustCompile(`^\s*@[A-Za-z0-9_.$\\]+\s*=`)
	reMetadata        = regexp.MustCompile(`^\s*!`)
)

// Parse decodes textual LLVM IR into a Module. Warnings (unknown opcodes,
// inline-assembly calls) are recorded in warnings rather than returned as
// errors, per spec.md §4.1/§7: only syntactic malformedness is fatal.
func Parse(src string, warnings *warn.Collector) (*Module, error) {
	if warnings == nil {
		warnings = warn.NewCollector()
	}

	m := newModule()

	lines := strings.Split(src, "\n")

	var offset int
	var cur *Function
	depth := 0 // brace depth inside the current function body

	seenUnknownOpcode := make(map[string]bool)

	for _, line := range lines {
		lineOffset := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || reMetadata.MatchString(line) {
			continue
		}

		if cur == nil {
			if reDefineOrDeclare.MatchString(line) {
				f, err := parseSignature(line)
				if err != nil {
					return nil, curated.Errorf(category.CannotParseIR, lineOffset, err)
				}
				existing := m.function(f.Name)
				existing.Fingerprint = f.Fingerprint
				if strings.HasPrefix(trimmed, "define") {
					existing.Defined = true
					cur = existing
					if strings.Contains(line, "{") {
						depth = 1
					}
				}
				continue
			}

			if reGlobalLine.MatchString(line) {
				for _, mm := range reGlobalFuncRef.FindAllStringSubmatch(line, -1) {
					m.function(mm[1]).AddressTaken = true
				}
				continue
			}

			// anything else at top level (target triple, comments, type
			// definitions, attribute groups) is simply not interesting to
			// this analysis and is skipped.
			continue
		}

		// inside a function body
		if strings.Contains(line, "{") {
			depth++
		}
		if strings.Contains(line, "}") {
			depth--
			if depth <= 0 {
				cur = nil
				depth = 0
				continue
			}
		}

		// a call to inline assembly ("call ... asm "...", "..."(...)") still
		// matches reCallOrInvoke below, but it is not a call edge to any IR
		// function and must be recognised first (spec.md §4.1: inline
		// assembly is assumed to use zero additional stack).
		if reCallOrInvoke.MatchString(line) && strings.Contains(trimmed, "asm") && strings.Contains(trimmed, "\"") {
			warnings.Add(warn.KindInlineAsm, cur.Name, "")
			continue
		}

		if reCallOrInvoke.MatchString(line) {
			cs, callee, ok := parseCallSite(line)
			if ok {
				if callee != "" {
					cs.Callee = callee
					// a direct call is not, by itself, an address-take: the
					// callee is invoked, not stored or passed as a value
					// (spec.md §4.4 step 5 / §9).
				} else {
					cs.Indirect = true
				}
				cur.CallSites = append(cur.CallSites, cs)
			}

			// any other @name mentioned on this line besides the callee
			// itself is a non-call operand use, i.e. address-taking
			// (passing a function pointer as an argument, storing it into a
			// local, building a vtable-like constant inline).
			for _, mm := range reGlobalFuncRef.FindAllStringSubmatch(line, -1) {
				if mm[1] != callee {
					m.function(mm[1]).AddressTaken = true
				}
			}
			continue
		}

		if reStoreFuncPtr.MatchString(line) {
			mm := reStoreFuncPtr.FindStringSubmatch(line)
			m.function(mm[1]).AddressTaken = true
			continue
		}

		// any other reference to a named global/function symbol inside the
		// body (loading its address, placing it in an aggregate constant,
		// passing it as a bare operand) counts as address-taking.
		found := false
		for _, mm := range reGlobalFuncRef.FindAllStringSubmatch(line, -1) {
			m.function(mm[1]).AddressTaken = true
			found = true
		}

		if !found {
			if op := unknownOpcode(trimmed); op != "" && !seenUnknownOpcode[op] {
				seenUnknownOpcode[op] = true
				warnings.Add(warn.KindUnknownOpcode, op, "")
			}
		}
	}

	return m, nil
}

// knownOpcodes lists every LLVM instruction mnemonic this parser
// understands well enough to know it is uninteresting to call-graph
// construction (it neither calls anything nor takes an address). Anything
// else gets a single warning per distinct mnemonic (spec.md §4.1: "Unknown
// instruction opcodes are ignored with a single warning per opcode").
var knownOpcodes = map[string]bool{
	"ret": true, "br": true, "switch": true, "unreachable": true,
	"add": true, "sub": true, "mul": true, "udiv": true, "sdiv": true,
	"urem": true, "srem": true, "shl": true, "lshr": true, "ashr": true,
	"and": true, "or": true, "xor": true, "icmp": true, "fcmp": true,
	"fadd": true, "fsub": true, "fmul": true, "fdiv": true, "frem": true,
	"alloca": true, "load": true, "getelementptr": true, "phi": true,
	"select": true, "extractvalue": true, "insertvalue": true,
	"extractelement": true, "insertelement": true, "shufflevector": true,
	"trunc": true, "zext": true, "sext": true, "fptrunc": true, "fpext": true,
	"fptoui": true, "fptosi": true, "uitofp": true, "sitofp": true,
	"ptrtoint": true, "inttoptr": true, "bitcast": true, "addrspacecast": true,
	"fence": true, "atomicrmw": true, "cmpxchg": true, "landingpad": true,
	"resume": true, "freeze": true, "va_arg": true, "indirectbr": true,
}

// unknownOpcode returns the instruction mnemonic of line if it looks like an
// instruction this parser doesn't specifically recognise, or "" if the line
// is blank, a label, or a recognised opcode.
func unknownOpcode(trimmed string) string {
	if trimmed == "" || strings.HasSuffix(trimmed, ":") {
		return ""
	}

	text := trimmed
	if i := strings.Index(text, "="); i >= 0 && i+1 < len(text) {
		text = text[i+1:]
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	op := strings.TrimSuffix(fields[0], ",")
	if op == "" || knownOpcodes[op] {
		return ""
	}
	// guard against punctuation-only or purely numeric/operand fragments
	// (e.g. continuation lines of a multi-line instruction)
	if !isIdentLike(op) {
		return ""
	}
	return op
}

func isIdentLike(s string) bool {
	for i, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			continue
		}
		if i > 0 && r >= '0' && r <= '9' {
			continue
		}
		return false
	}
	return len(s) > 0
}

// parsedSig is the function name + fingerprint extracted from a define or
// declare signature.
type parsedSig struct {
	Name        string
	Fingerprint string
}

// parseSignature parses a "define"/"declare" line into a name and
// fingerprint.
func parseSignature(line string) (parsedSig, error) {
	m := reFuncName.FindStringSubmatchIndex(line)
	if m == nil {
		return parsedSig{}, curated.Errorf(category.CannotParseSignature, "expected function name in: "+strings.TrimSpace(line))
	}

	name := line[m[2]:m[3]]
	nameStart := m[0]

	paramsStart := m[1] // index just after '('
	paramsEnd := matchParen(line, paramsStart-1)
	if paramsEnd < 0 {
		return parsedSig{}, curated.Errorf(category.CannotParseSignature, "unbalanced parentheses in: "+strings.TrimSpace(line))
	}
	params := line[paramsStart:paramsEnd]

	ret := extractReturnType(line[:nameStart])

	return parsedSig{
		Name:        name,
		Fingerprint: Fingerprint(ret, params),
	}, nil
}

// extractReturnType pulls the return-type token out of the text preceding a
// function name, skipping linkage/visibility/calling-convention keywords.
func extractReturnType(prefix string) string {
	fields := strings.Fields(prefix)
	for i := len(fields) - 1; i >= 0; i-- {
		w := strings.TrimRight(fields[i], "*")
		if linkageAndAttrWords[w] {
			continue
		}
		// put back any trailing '*' that TrimRight ate for the lookup.
		return fields[i]
	}
	return "void"
}

// parseCallSite extracts the observed fingerprint and, if present, the
// direct callee name from a line containing a call or invoke instruction.
// ok is false if the line could not be confidently parsed as a call (e.g. a
// reference to "call" inside a comment or string).
func parseCallSite(line string) (cs CallSite, callee string, ok bool) {
	idx := reCallOrInvoke.FindStringIndex(line)
	if idx == nil {
		return CallSite{}, "", false
	}

	rest := line[idx[1]:]
	rest = reInvokeTail.ReplaceAllString(rest, "")

	argsEnd := strings.LastIndex(rest, ")")
	if argsEnd < 0 {
		return CallSite{}, "", false
	}
	argsStart := matchParenBackward(rest, argsEnd)
	if argsStart < 0 {
		return CallSite{}, "", false
	}
	args := rest[argsStart+1 : argsEnd]
	prefix := strings.TrimSpace(rest[:argsStart])

	var retPrefix string
	switch {
	case reTrailingAt.MatchString(prefix):
		mm := reTrailingAt.FindStringSubmatch(prefix)
		callee = mm[1]
		retPrefix = reTrailingAt.ReplaceAllString(prefix, "")
	case strings.Contains(prefix, "bitcast") && reBitcastTo.MatchString(prefix):
		mm := reBitcastTo.FindStringSubmatch(prefix)
		callee = mm[1]
		if i := strings.Index(prefix, "bitcast"); i >= 0 {
			retPrefix = prefix[:i]
		}
	case reTrailingPct.MatchString(prefix):
		callee = ""
		retPrefix = reTrailingPct.ReplaceAllString(prefix, "")
	default:
		return CallSite{}, "", false
	}

	ret := extractReturnType(retPrefix)
	fp := Fingerprint(ret, args)

	return CallSite{Fingerprint: fp}, callee, true
}

// matchParen returns the index of the ')' matching the '(' at openIdx, or -1.
func matchParen(s string, openIdx int) int {
	depth := 0
	for i := openIdx; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// matchParenBackward returns the index of the '(' matching the ')' at
// closeIdx, scanning backward.
func matchParenBackward(s string, closeIdx int) int {
	depth := 0
	for i := closeIdx; i >= 0; i-- {
		switch s[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
