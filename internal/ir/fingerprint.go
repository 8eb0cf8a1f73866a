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

import "strings"

// attributesToStrip lists the parameter/return attributes that appear
// between a type and its name (or between types in a function pointer
// type) and must not be allowed to affect a fingerprint. These are taken
// from the attribute list LLVM emits for function arguments.
var attributesToStrip = map[string]bool{
	"noundef":     true,
	"zeroext":     true,
	"signext":     true,
	"inreg":       true,
	"byval":       true,
	"inalloca":    true,
	"sret":        true,
	"align":       true,
	"noalias":     true,
	"nocapture":   true,
	"nest":        true,
	"returned":    true,
	"nonnull":     true,
	"dereferenceable": true,
	"swiftself":   true,
	"swifterror":  true,
	"immarg":      true,
}

// normaliseType reduces a single LLVM type token (as it appears in a
// parameter or return-type position) to its canonical fingerprint form.
//
//   - Both typed pointers ("i32*", "%struct.Foo*") and opaque pointers
//     ("ptr") normalise to the literal token "ptr", since the two spellings
//     are interchangeable within a single IR file and the fingerprint must
//     not depend on which one the compiler happened to emit (spec.md §3).
//   - Any other token is returned unchanged. Attribute words (noalias,
//     nonnull, align N, ...) and parameter names (e.g. "%0", "%argc") are
//     removed before this point, by tokeniseParam.
func normaliseType(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}

	// strip one or more trailing '*' - typed pointer of any depth collapses
	// to "ptr" just like the opaque pointer form.
	base := strings.TrimRight(tok, "*")
	if base != tok {
		return "ptr"
	}
	if tok == "ptr" {
		return "ptr"
	}

	return tok
}

// splitTopLevel splits a comma-separated list respecting nested parens and
// angle/square brackets, so that aggregate types such as "{i32, i32}" or
// "[4 x i8]" are not split internally.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range s {
		switch r {
		case '(', '{', '[', '<':
			depth++
		case ')', '}', ']', '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

// tokeniseParam extracts the type token from one parameter entry, dropping
// any attribute words and any trailing "%name" value name.
func tokeniseParam(param string) string {
	fields := strings.Fields(param)

	var typeTok string
	for _, f := range fields {
		word := strings.TrimSuffix(f, ",")
		if attributesToStrip[word] {
			continue
		}
		if strings.HasPrefix(word, "align") {
			continue
		}
		if strings.HasPrefix(word, "%") || strings.HasPrefix(word, "@") {
			// value name, not a type - ignore.
			continue
		}
		if typeTok == "" {
			typeTok = word
		}
	}
	return normaliseType(typeTok)
}

// Fingerprint computes the canonical, target-independent (modulo pointer
// width) signature string for a return type and a raw parameter-list string
// (the text between the parens of a function type, e.g. "i32 %a, i8* %b").
//
// The result takes the form "<ret> (<p1>, <p2>, ...)*", matching the way
// LLVM itself spells a pointer-to-function type. This is also the literal
// string used to label synthetic indirect-call nodes (spec.md §4.6, §8
// scenario 3: "i1 ()*").
func Fingerprint(ret string, rawParams string) string {
	ret = normaliseType(strings.Fields(strings.TrimSpace(ret))[0])

	rawParams = strings.TrimSpace(rawParams)
	if rawParams == "" || rawParams == "void" {
		return ret + " ()*"
	}

	params := splitTopLevel(rawParams)
	norm := make([]string, 0, len(params))
	for _, p := range params {
		p = strings.TrimSpace(p)
		if p == "" || p == "..." {
			continue
		}
		t := tokeniseParam(p)
		if t == "" {
			continue
		}
		norm = append(norm, t)
	}

	return ret + " (" + strings.Join(norm, ", ") + ")*"
}
