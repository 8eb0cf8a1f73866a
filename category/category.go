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

// Package category lists the curated-error patterns this tool's fatal errors
// are built from, the way the teacher's errors package keeps a single Errno
// list rather than scattering string literals across call sites. Each
// constant is a pattern suitable for curated.Errorf, curated.Is, and
// curated.Has.
package category

const (
	// CannotParseIR is the LLVM IR parser's fatal syntax error, carrying the
	// byte offset of the malformed line (spec.md §4.1).
	CannotParseIR = "cannot parse IR: offset %d: %v"

	// CannotReadELF covers both "file doesn't open as ELF at all" and
	// "a named section couldn't be read" (spec.md §4.2).
	CannotReadELF = "cannot read ELF: %v"

	// CannotReadTarget is returned when the caller-supplied target triple is
	// malformed (it carries surrounding whitespace). A well-formed triple
	// naming a machine with no disassembler is not an error: it only turns
	// the disassembler off.
	CannotReadTarget = "cannot read target: %v"

	// CannotParseSignature is the IR parser's fatal error for a
	// define/declare/call line whose signature doesn't match the expected
	// shape (spec.md §4.1), carrying the offending line text.
	CannotParseSignature = "cannot parse signature: %s"
)
