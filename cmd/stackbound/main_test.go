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

package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jetsetilly/stackbound/internal/elfreader"
	"github.com/jetsetilly/stackbound/internal/ir"
	"github.com/jetsetilly/stackbound/internal/warn"
)

const (
	ehSize  = 52
	shSize  = 40
	symSize = 16

	shtNull     = 0
	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3

	shfAlloc     = 0x2
	shfExecinstr = 0x4
)

func buildNameTable(names ...string) (data []byte, offsets []uint32) {
	data = []byte{0}
	for _, n := range names {
		offsets = append(offsets, uint32(len(data)))
		data = append(data, []byte(n)...)
		data = append(data, 0)
	}
	return data, offsets
}

// buildCallerCalleeELF assembles a tiny ARM/little-endian object with two
// functions: caller (a PUSH/POP prologue calling callee via BL) and callee (a
// leaf with no .stack_sizes entry, forcing the disassembler to supply its
// frame). It mirrors the fixture style in internal/elfreader's own tests.
func buildCallerCalleeELF(t *testing.T) string {
	t.Helper()

	order := binary.LittleEndian

	// callee: push {r4, lr}; pop {r4, pc}  (frame = 8 bytes)
	calleeAddr := uint32(0x1000)
	calleeCode := []byte{0x10, 0xb5, 0x10, 0xbd}

	// caller: push {r4, lr}; bl callee; pop {r4, pc}  (frame = 8 bytes, BL.W
	// target recovered at calleeAddr). caller is laid out immediately after
	// callee in the same .text section, so its symbol address must be
	// contiguous with calleeCode's length. hi/lo were derived by hand from
	// the T1 BL.W encoding (S:I1:I2:imm10:imm11) for a branch from the BL
	// halfword pair back to calleeAddr, and checked against the decoder's own
	// bit layout before being hard-coded here.
	callerAddr := calleeAddr + uint32(len(calleeCode))
	hi := uint16(0xf7ff)
	lo := uint16(0xfffb)
	var callerCode []byte
	callerCode = append(callerCode, 0x10, 0xb5) // push {r4, lr}
	var bl [4]byte
	order.PutUint16(bl[0:2], hi)
	order.PutUint16(bl[2:4], lo)
	callerCode = append(callerCode, bl[:]...)
	callerCode = append(callerCode, 0x10, 0xbd) // pop {r4, pc}

	text := append(append([]byte{}, calleeCode...), callerCode...)

	symNames, symOff := buildNameTable("callee", "caller")
	shNames, shOff := buildNameTable(".text", ".symtab", ".strtab", ".shstrtab")

	var symtab bytes.Buffer
	writeSym := func(name, value, size uint32, info, other byte, shndx uint16) {
		_ = binary.Write(&symtab, order, name)
		_ = binary.Write(&symtab, order, value)
		_ = binary.Write(&symtab, order, size)
		symtab.WriteByte(info)
		symtab.WriteByte(other)
		_ = binary.Write(&symtab, order, shndx)
	}
	const stbGlobal, sttFunc = 1, 2
	writeSym(0, 0, 0, 0, 0, 0)
	writeSym(symOff[0], calleeAddr, uint32(len(calleeCode)), (stbGlobal<<4)|sttFunc, 0, 1)
	writeSym(symOff[1], callerAddr, uint32(len(callerCode)), (stbGlobal<<4)|sttFunc, 0, 1)

	var body bytes.Buffer
	textOff := uint32(ehSize)
	body.Write(text)
	symtabOff := textOff + uint32(len(text))
	body.Write(symtab.Bytes())
	strtabOff := symtabOff + uint32(symtab.Len())
	body.Write(symNames)
	shstrtabOff := strtabOff + uint32(len(symNames))
	body.Write(shNames)

	shoff := uint32(ehSize) + uint32(body.Len())

	var f bytes.Buffer
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 1
	ident[5] = 1
	ident[6] = 1
	f.Write(ident)
	_ = binary.Write(&f, order, uint16(1))
	_ = binary.Write(&f, order, uint16(40)) // EM_ARM
	_ = binary.Write(&f, order, uint32(1))
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, shoff)
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, uint16(ehSize))
	_ = binary.Write(&f, order, uint16(0))
	_ = binary.Write(&f, order, uint16(0))
	_ = binary.Write(&f, order, uint16(shSize))
	_ = binary.Write(&f, order, uint16(5))
	_ = binary.Write(&f, order, uint16(4))

	f.Write(body.Bytes())

	writeShdr := func(name, shtype, flags, addr, offset, size, link, info, align, entsize uint32) {
		_ = binary.Write(&f, order, name)
		_ = binary.Write(&f, order, shtype)
		_ = binary.Write(&f, order, flags)
		_ = binary.Write(&f, order, addr)
		_ = binary.Write(&f, order, offset)
		_ = binary.Write(&f, order, size)
		_ = binary.Write(&f, order, link)
		_ = binary.Write(&f, order, info)
		_ = binary.Write(&f, order, align)
		_ = binary.Write(&f, order, entsize)
	}
	writeShdr(0, shtNull, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(shOff[0], shtProgbits, shfAlloc|shfExecinstr, uint32(calleeAddr), textOff, uint32(len(text)), 0, 0, 4, 0)
	writeShdr(shOff[1], shtSymtab, 0, 0, symtabOff, uint32(symtab.Len()), 3, 1, 4, symSize)
	writeShdr(shOff[2], shtStrtab, 0, 0, strtabOff, uint32(len(symNames)), 0, 0, 1, 0)
	writeShdr(shOff[3], shtStrtab, 0, 0, shstrtabOff, uint32(len(shNames)), 0, 0, 1, 0)

	path := filepath.Join(t.TempDir(), "fixture.elf")
	require.NoError(t, os.WriteFile(path, f.Bytes(), 0o644))
	return path
}

// buildELFOnlySymbolELF assembles the same caller/callee pair as
// buildCallerCalleeELF plus a third leaf function, "helper", that exists
// only as an ELF symbol - nothing in the test's IR ever defines it, the way
// a hand-written assembly routine or a precompiled library function would
// show up in a real object.
func buildELFOnlySymbolELF(t *testing.T) string {
	t.Helper()

	order := binary.LittleEndian

	calleeAddr := uint32(0x1000)
	calleeCode := []byte{0x10, 0xb5, 0x10, 0xbd} // push {r4, lr}; pop {r4, pc}

	callerAddr := calleeAddr + uint32(len(calleeCode))
	hi := uint16(0xf7ff)
	lo := uint16(0xfffb)
	var callerCode []byte
	callerCode = append(callerCode, 0x10, 0xb5)
	var bl [4]byte
	order.PutUint16(bl[0:2], hi)
	order.PutUint16(bl[2:4], lo)
	callerCode = append(callerCode, bl[:]...)
	callerCode = append(callerCode, 0x10, 0xbd)

	helperAddr := callerAddr + uint32(len(callerCode))
	helperCode := []byte{0x10, 0xb5, 0x10, 0xbd} // push {r4, lr}; pop {r4, pc}, same shape as callee

	text := append(append(append([]byte{}, calleeCode...), callerCode...), helperCode...)

	symNames, symOff := buildNameTable("callee", "caller", "helper")
	shNames, shOff := buildNameTable(".text", ".symtab", ".strtab", ".shstrtab")

	var symtab bytes.Buffer
	writeSym := func(name, value, size uint32, info, other byte, shndx uint16) {
		_ = binary.Write(&symtab, order, name)
		_ = binary.Write(&symtab, order, value)
		_ = binary.Write(&symtab, order, size)
		symtab.WriteByte(info)
		symtab.WriteByte(other)
		_ = binary.Write(&symtab, order, shndx)
	}
	const stbGlobal, sttFunc = 1, 2
	writeSym(0, 0, 0, 0, 0, 0)
	writeSym(symOff[0], calleeAddr, uint32(len(calleeCode)), (stbGlobal<<4)|sttFunc, 0, 1)
	writeSym(symOff[1], callerAddr, uint32(len(callerCode)), (stbGlobal<<4)|sttFunc, 0, 1)
	writeSym(symOff[2], helperAddr, uint32(len(helperCode)), (stbGlobal<<4)|sttFunc, 0, 1)

	var body bytes.Buffer
	textOff := uint32(ehSize)
	body.Write(text)
	symtabOff := textOff + uint32(len(text))
	body.Write(symtab.Bytes())
	strtabOff := symtabOff + uint32(symtab.Len())
	body.Write(symNames)
	shstrtabOff := strtabOff + uint32(len(symNames))
	body.Write(shNames)

	shoff := uint32(ehSize) + uint32(body.Len())

	var f bytes.Buffer
	ident := make([]byte, 16)
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	ident[4] = 1
	ident[5] = 1
	ident[6] = 1
	f.Write(ident)
	_ = binary.Write(&f, order, uint16(1))
	_ = binary.Write(&f, order, uint16(40)) // EM_ARM
	_ = binary.Write(&f, order, uint32(1))
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, shoff)
	_ = binary.Write(&f, order, uint32(0))
	_ = binary.Write(&f, order, uint16(ehSize))
	_ = binary.Write(&f, order, uint16(0))
	_ = binary.Write(&f, order, uint16(0))
	_ = binary.Write(&f, order, uint16(shSize))
	_ = binary.Write(&f, order, uint16(5))
	_ = binary.Write(&f, order, uint16(4))

	f.Write(body.Bytes())

	writeShdr := func(name, shtype, flags, addr, offset, size, link, info, align, entsize uint32) {
		_ = binary.Write(&f, order, name)
		_ = binary.Write(&f, order, shtype)
		_ = binary.Write(&f, order, flags)
		_ = binary.Write(&f, order, addr)
		_ = binary.Write(&f, order, offset)
		_ = binary.Write(&f, order, size)
		_ = binary.Write(&f, order, link)
		_ = binary.Write(&f, order, info)
		_ = binary.Write(&f, order, align)
		_ = binary.Write(&f, order, entsize)
	}
	writeShdr(0, shtNull, 0, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(shOff[0], shtProgbits, shfAlloc|shfExecinstr, uint32(calleeAddr), textOff, uint32(len(text)), 0, 0, 4, 0)
	writeShdr(shOff[1], shtSymtab, 0, 0, symtabOff, uint32(symtab.Len()), 3, 1, 4, symSize)
	writeShdr(shOff[2], shtStrtab, 0, 0, strtabOff, uint32(len(symNames)), 0, 0, 1, 0)
	writeShdr(shOff[3], shtStrtab, 0, 0, shstrtabOff, uint32(len(shNames)), 0, 0, 1, 0)

	path := filepath.Join(t.TempDir(), "fixture.elf")
	require.NoError(t, os.WriteFile(path, f.Bytes(), 0o644))
	return path
}

func TestDisassembleLiveFunctionsCoversELFOnlySymbol(t *testing.T) {
	r, err := elfreader.Open(buildELFOnlySymbolELF(t))
	require.NoError(t, err)
	defer r.Close()

	elfAddr, _ := symbolMaps(r)

	// "helper" is deliberately absent from the IR: only caller/callee are
	// defined, the way a precompiled or hand-written routine never appears
	// in the compilation unit's own IR.
	src := `
define void @caller() {
  call void @callee()
  ret void
}

define void @callee() {
  ret void
}
`
	mod, err := ir.Parse(src, nil)
	require.NoError(t, err)

	disasm := disassembleLiveFunctions(r, mod, elfAddr, warn.NewCollector())
	require.Contains(t, disasm, "helper")
	require.Equal(t, uint64(8), disasm["helper"].FrameBytes)
}

func TestSymbolMapsCanonicalisesByAddress(t *testing.T) {
	r, err := elfreader.Open(buildCallerCalleeELF(t))
	require.NoError(t, err)
	defer r.Close()

	elfAddr, addrToName := symbolMaps(r)
	require.Equal(t, uint64(0x1000), elfAddr["callee"])
	require.Equal(t, uint64(0x1004), elfAddr["caller"])
	require.Equal(t, "callee", addrToName[0x1000])
	require.Equal(t, "caller", addrToName[0x1004])
}

func TestEligibleForDisassemblyRequiresARMMachine(t *testing.T) {
	r, err := elfreader.Open(buildCallerCalleeELF(t))
	require.NoError(t, err)
	defer r.Close()

	require.True(t, eligibleForDisassembly(r, ""))
	require.True(t, eligibleForDisassembly(r, "thumbv7m-none-eabi"))
	require.False(t, eligibleForDisassembly(r, "x86_64-unknown-linux-gnu"))
}

func TestDisassembleLiveFunctionsRecoversBLTarget(t *testing.T) {
	r, err := elfreader.Open(buildCallerCalleeELF(t))
	require.NoError(t, err)
	defer r.Close()

	elfAddr, _ := symbolMaps(r)

	src := `
define void @caller() {
  call void @callee()
  ret void
}

define void @callee() {
  ret void
}
`
	mod, err := ir.Parse(src, nil)
	require.NoError(t, err)

	disasm := disassembleLiveFunctions(r, mod, elfAddr, warn.NewCollector())
	require.Contains(t, disasm, "caller")
	require.Contains(t, disasm, "callee")
	require.Equal(t, uint64(8), disasm["caller"].FrameBytes)
	require.Equal(t, uint64(8), disasm["callee"].FrameBytes)
	require.Contains(t, disasm["caller"].Targets, uint64(0x1000))
}

func TestRunEndToEndProducesDotAndReport(t *testing.T) {
	elfPath := buildCallerCalleeELF(t)

	irPath := filepath.Join(t.TempDir(), "program.ll")
	src := `
define void @caller() {
  call void @callee()
  ret void
}

define void @callee() {
  ret void
}
`
	require.NoError(t, os.WriteFile(irPath, []byte(src), 0o644))

	outPath := filepath.Join(t.TempDir(), "out.dot")
	err := run(irPath, elfPath, "thumbv7m-none-eabi", "caller", outPath, 0)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	doc := string(data)
	require.Contains(t, doc, "caller")
	require.Contains(t, doc, "callee")
}
