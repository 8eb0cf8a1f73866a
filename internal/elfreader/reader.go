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

// Package elfreader opens a linked ELF object and exposes the three things
// the rest of the pipeline needs from it: the defined function symbols, the
// decoded .stack_sizes section, and raw code bytes for the disassembler.
//
// It is a much narrower cousin of the teacher's elfShim
// (coprocessor/developer/dwarf/elf_shim.go): that shim exists to satisfy a
// DWARF-reading interface for an emulator's source-level debugger, while this
// reader only ever needs symbols, one named section, and byte ranges.
package elfreader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/stackbound/category"
	"github.com/jetsetilly/stackbound/curated"
)

// Symbol is one defined function symbol.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Reader wraps an open ELF file.
type Reader struct {
	ef *elf.File

	funcSymbols []Symbol
	aliases     *aliasTable
}

// Open reads and validates path as an ELF object. It does not require the
// object to carry DWARF, a .stack_sizes section, or any particular machine
// type; callers decide what to do with what's present.
func Open(path string) (*Reader, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, curated.Errorf(category.CannotReadELF, err)
	}

	r := &Reader{ef: ef}
	if err := r.indexSymbols(); err != nil {
		return nil, err
	}

	return r, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.ef.Close()
}

// Machine reports the ELF file's machine type, e.g. elf.EM_ARM.
func (r *Reader) Machine() elf.Machine {
	return r.ef.Machine
}

// Class reports whether the object is 32 or 64 bit; this decides the
// address-field width when decoding .stack_sizes.
func (r *Reader) Class() elf.Class {
	return r.ef.Class
}

func (r *Reader) indexSymbols() error {
	syms, err := r.ef.Symbols()
	if err != nil {
		// a stripped object with no symbol table at all is not malformed;
		// it simply contributes nothing to the live set beyond what the
		// disassembler can recover directly from section bytes.
		r.aliases = newAliasTable()
		return nil
	}

	r.aliases = newAliasTable()
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Section == elf.SHN_UNDEF {
			continue
		}
		if s.Name == "" {
			continue
		}

		sym := Symbol{Name: s.Name, Addr: s.Value, Size: s.Size}
		r.funcSymbols = append(r.funcSymbols, sym)
		r.aliases.add(s.Value, s.Name)
	}

	return nil
}

// Symbols returns every defined function symbol: name, address, size.
func (r *Reader) Symbols() []Symbol {
	out := make([]Symbol, len(r.funcSymbols))
	copy(out, r.funcSymbols)
	return out
}

// AliasesAt returns every symbol name recorded at addr, sorted.
func (r *Reader) AliasesAt(addr uint64) []string {
	return r.aliases.namesAt(addr)
}

// Canonical chooses which of the (possibly several) symbol names at addr
// should represent the function in the call graph: preferred if it is one of
// the aliases at that address, otherwise the lexicographically first alias.
// This is how the caller reconciles an address found only via ELF/disassembly
// with the name the IR parser actually referenced (spec.md §4.2).
func (r *Reader) Canonical(addr uint64, preferred string) string {
	return r.aliases.canonical(addr, preferred)
}

// StackSizes decodes the .stack_sizes section, if present, into a map from
// symbol address to local frame size in bytes. Absence of the section is not
// an error: it yields an empty map (spec.md §4.2).
func (r *Reader) StackSizes() (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)

	sec := r.ef.Section(".stack_sizes")
	if sec == nil {
		return out, nil
	}

	data, err := sec.Data()
	if err != nil {
		return nil, curated.Errorf(category.CannotReadELF, fmt.Errorf(".stack_sizes: %w", err))
	}

	addrWidth := 4
	if r.ef.Class == elf.ELFCLASS64 {
		addrWidth = 8
	}

	order := r.ef.ByteOrder
	pos := 0
	for pos < len(data) {
		if pos+addrWidth > len(data) {
			return nil, curated.Errorf(category.CannotReadELF, fmt.Errorf(".stack_sizes: truncated record at offset %d", pos))
		}

		var addr uint64
		if addrWidth == 8 {
			addr = order.Uint64(data[pos : pos+8])
		} else {
			addr = uint64(order.Uint32(data[pos : pos+4]))
		}
		pos += addrWidth

		if pos >= len(data) {
			return nil, curated.Errorf(category.CannotReadELF, fmt.Errorf(".stack_sizes: missing frame size at offset %d", pos))
		}

		frame, n := decodeULEB128(data[pos:])
		if n == 0 {
			return nil, curated.Errorf(category.CannotReadELF, fmt.Errorf(".stack_sizes: bad ULEB128 at offset %d", pos))
		}
		pos += n

		out[addr] = frame
	}

	return out, nil
}

// BytesAt returns length bytes of raw section data starting at the given
// virtual address, for use by the disassembler. ok is false if no loaded
// section covers the whole range.
func (r *Reader) BytesAt(addr uint64, length uint64) (data []byte, ok bool) {
	for _, sec := range r.ef.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if addr < sec.Addr || addr+length > sec.Addr+sec.Size {
			continue
		}

		d, err := sec.Data()
		if err != nil {
			return nil, false
		}

		off := addr - sec.Addr
		if off+length > uint64(len(d)) {
			return nil, false
		}

		return d[off : off+length], true
	}

	return nil, false
}

// ByteOrder is the target's endianness, needed by the disassembler to decode
// 16/32-bit Thumb instruction halfwords.
func (r *Reader) ByteOrder() binary.ByteOrder {
	return r.ef.ByteOrder
}
