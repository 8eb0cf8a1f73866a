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

// Package curated wraps this tool's fatal errors in a type that carries its
// raising pattern alongside its message, so a caller can ask which category
// (see the category package) produced an error instead of string-matching
// Error(). Every pattern in use is one of category's constants, never a
// string literal at the call site:
//
//	if _, err := r.StackSizes(); err != nil {
//		return curated.Errorf(category.CannotReadELF, err)
//	}
//
// Is reports whether an error was raised under a specific pattern:
//
//	if curated.Is(err, category.CannotReadELF) {
//		// the ELF couldn't be read at all, or a section read failed
//	}
//
// Has looks further, past a category error that wraps another:
//
//	outer := curated.Errorf(category.CannotReadTarget, err)
//	curated.Has(outer, category.CannotReadTarget) // true
//	curated.Is(outer, category.CannotReadELF)      // false: wrong pattern
//	curated.Has(outer, category.CannotReadELF)     // true, if err itself matches
//
// IsAny reports whether an error, or anything it wraps, came from Errorf at
// all, as opposed to an unclassified error from elsewhere in the chain.
//
// Error() normalises the message so a chain of Errorf calls that each repeat
// the same leading phrase collapses to one occurrence: adjacent parts,
// split on ": " as suggested on p239 of "The Go Programming Language"
// (Donovan, Kernighan), that are identical are joined once rather than
// twice.
//
// A categorized error also implements Unwrap, so the standard library's
// errors.Is and errors.As see through it to whatever plain error sits
// underneath - typically an *os.PathError or similar from the stdlib call
// that triggered the category in the first place.
package curated
