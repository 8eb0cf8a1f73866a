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

// Package ir's parser is deliberately pattern-oriented rather than a full
// LLVM grammar: it recognises define/declare signatures, call/invoke
// instructions (direct, indirect, and the bitcast-of-function-pointer
// pattern), global initialisers, and stores of a function's address, and
// treats everything else as either uninteresting or an address-taking use.
// This is sufficient to build a call graph from compiler-emitted IR, which
// is the only kind of IR this tool is ever pointed at (spec.md §1: "the
// compiler's textual IR for the same program").
package ir
