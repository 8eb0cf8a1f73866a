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

// Package armscan is a narrow Thumb/Thumb-2 scanner: given one function's
// raw code bytes it tracks the largest stack decrement from the prologue
// instructions (PUSH, SUB SP #imm, VPUSH, STMDB SP!) and recovers the
// absolute targets of direct branches (B, Bcond, BL/BL.W) found in the body.
//
// It is adapted from the bit-pattern dispatch in the teacher's
// hardware/memory/cartridge/arm/thumb.go (decodeThumb, format 1-19) and
// thumb2_32bit.go/thumb2_fpu.go (32-bit Thumb-2 instructions), trimmed from a
// full ARM7TDMI/Cortex-M interpreter down to the handful of instruction
// shapes that affect a function's stack frame or name its direct successors.
// Nothing here executes an instruction; it only measures and classifies.
package armscan

import "encoding/binary"

// Result is what scanning one function's bytes produces.
type Result struct {
	// FrameBytes is the largest cumulative stack decrement observed from the
	// function's prologue instructions.
	FrameBytes uint64

	// Exact is true when the function body contains no internal branch
	// (B, Bcond, or their 32-bit B.W forms; a BL call does not count) that
	// could make FrameBytes an
	// underestimate of some other path (spec.md §4.3: "a function whose body
	// is strictly branch-free yields an exact frame size").
	Exact bool

	// Targets holds the absolute addresses of every direct branch/call this
	// scan recovered, in the order encountered. Duplicates are possible and
	// left to the caller to collapse.
	Targets []uint64

	// Anomaly is true if the scan stopped before reaching the end of code,
	// either because of a UDF instruction or a truncated trailing halfword.
	Anomaly bool
}

// Scan walks code (one function's worth of bytes starting at base) decoding
// just enough of Thumb/Thumb-2 to measure its prologue and recover direct
// branch targets.
func Scan(code []byte, base uint64, order binary.ByteOrder) Result {
	res := Result{Exact: true}

	var depth uint64
	i := 0
	for i+2 <= len(code) {
		hw := order.Uint16(code[i : i+2])
		addr := base + uint64(i)

		// UDF (ARMv6-M/v7-M "permanently undefined" encoding living in the
		// same 16-bit space conditional branch format 16 would otherwise
		// use for condition 0b1110). Stop gracefully (spec.md §4.3).
		if hw&0xff00 == 0xde00 {
			res.Anomaly = true
			break
		}

		switch {
		case isThumb2FirstHalfword(hw):
			if i+4 > len(code) {
				res.Anomaly = true
				i += 2
				continue
			}
			lo := order.Uint16(code[i+2 : i+4])

			switch {
			case hw&0xf800 == 0xf800 || hw&0xf800 == 0xf000:
				if target, isBranch, ok := decodeWideBranch(hw, lo, addr); ok {
					// a BL.W call returns to the next instruction, so only a
					// B.W/conditional B.W makes the frame inexact.
					if lo&0xd000 != 0xd000 {
						res.Exact = false
					}
					if isBranch {
						res.Targets = append(res.Targets, target)
					}
					i += 4
					continue
				}
			}

			// STMDB SP!, {reglist} - fixed encoding (Rn and op are not
			// variable fields): "A7.7.159 STMDB / STMFD" of "ARMv7-M".
			if hw == 0xe92d {
				depth += uint64(popcount16(lo&0x5fff)) * 4
				if depth > res.FrameBytes {
					res.FrameBytes = depth
				}
				i += 4
				continue
			}

			// VPUSH - "A7.7.252 VPUSH" of "ARMv7-M", adapted from the
			// teacher's decodeThumb2FPURegisterLoadStore: Rn (hi bits 3:0)
			// must be SP (0b1101) and op (hi bits 8:4, masked 0b11011) must
			// select the VSTM-with-writeback form.
			if hw&0xfe00 == 0xec00 {
				rn := hw & 0x000f
				op := (hw & 0x01f0) >> 4
				if rn == 0b1101 && op&0b11011 == 0b10010 {
					imm8 := lo & 0x00ff
					depth += uint64(imm8) * 4
					if depth > res.FrameBytes {
						res.FrameBytes = depth
					}
					i += 4
					continue
				}
			}

			// any other 32-bit Thumb-2 instruction is uninteresting to frame
			// tracking and branch recovery; skip both halfwords.
			i += 4
			continue

		case hw&0xf000 == 0xf000:
			// format 19 - Long branch with link (BL), 16-bit Thumb-1 form:
			// split across two halfwords, high first then low.
			if i+4 > len(code) {
				res.Anomaly = true
				i += 2
				continue
			}
			lo := order.Uint16(code[i+2 : i+4])
			if hw&0x0800 == 0 && lo&0xf800 == 0xf800 {
				target := decodeThumb1BL(hw, lo, addr)
				res.Targets = append(res.Targets, target)
			}
			i += 4
			continue

		case hw&0xf000 == 0xe000:
			// format 18 - Unconditional branch (B)
			offset := uint32(hw&0x07ff) << 1
			if offset&0x800 != 0 {
				offset |= 0xfffff000
			}
			target := addr + 4 + uint64(int32(offset))
			res.Targets = append(res.Targets, target)
			res.Exact = false
			i += 2
			continue

		case hw&0xff00 == 0xdf00:
			// format 17 - Software interrupt (SVC); no branch target.
			i += 2
			continue

		case hw&0xf000 == 0xd000:
			// format 16 - Conditional branch (Bcond)
			offset := uint32(hw&0x00ff) << 1
			if offset&0x100 != 0 {
				offset |= 0xffffff00
			}
			target := addr + 4 + uint64(int32(offset))
			res.Targets = append(res.Targets, target)
			res.Exact = false
			i += 2
			continue

		case hw&0xf600 == 0xb400:
			// format 14 - Push/pop registers
			load := hw&0x0800 != 0
			pclr := hw&0x0100 != 0
			regList := uint8(hw & 0x00ff)
			count := popcount8(regList)
			if pclr {
				count++
			}
			if !load {
				depth += uint64(count) * 4
				if depth > res.FrameBytes {
					res.FrameBytes = depth
				}
			}
			i += 2
			continue

		case hw&0xff00 == 0xb000:
			// format 13 - Add offset to stack pointer (SUB SP,#imm when the
			// sign bit is set)
			sign := hw&0x80 != 0
			imm := uint64(hw&0x7f) << 2
			if sign {
				depth += imm
				if depth > res.FrameBytes {
					res.FrameBytes = depth
				}
			}
			i += 2
			continue

		default:
			i += 2
			continue
		}
	}

	return res
}

// isThumb2FirstHalfword reports whether hw's top 5 bits mark it as the first
// halfword of a 32-bit Thumb-2 instruction: "3.3 Instruction encoding for
// 32-bit Thumb instructions" of the "Thumb-2 Supplement" cited in the
// teacher's thumb2.go.
func isThumb2FirstHalfword(hw uint16) bool {
	top5 := hw & 0xf800
	return top5 == 0xe800 || top5 == 0xf000 || top5 == 0xf800
}

// decodeWideBranch recognises the 32-bit B.W/BL.W/BLX.W encoding family
// (hi[15:11] in {0b11110, 0b11111}, lo[15]=1) and computes its target using
// the standard ARMv7-M T3/T4 immediate assembly. ok is false for anything in
// this hi-halfword range that is not actually a branch (e.g. a data
// processing immediate instruction).
func decodeWideBranch(hi, lo uint16, addr uint64) (target uint64, isUnconditionalOrCall bool, ok bool) {
	if lo&0x8000 == 0 {
		return 0, false, false
	}

	s := uint32((hi >> 10) & 1)
	imm10 := uint32(hi & 0x3ff)
	j1 := uint32((lo >> 13) & 1)
	j2 := uint32((lo >> 11) & 1)
	imm11 := uint32(lo & 0x7ff)

	isBL := lo&0xd000 == 0xd000
	isCondWide := hi&0xf800 == 0xf000 && lo&0xd000 == 0x8000 && hi&0x03c0 != 0x0380

	var imm32 uint32
	if isBL {
		i1 := ^(j1 ^ s) & 1
		i2 := ^(j2 ^ s) & 1
		imm32 = (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
		if s != 0 {
			imm32 |= 0xfe000000
		}
	} else if lo&0xd000 == 0x9000 {
		// B.W unconditional, T4 encoding - same bit layout as BL.W.
		i1 := ^(j1 ^ s) & 1
		i2 := ^(j2 ^ s) & 1
		imm32 = (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
		if s != 0 {
			imm32 |= 0xfe000000
		}
	} else if isCondWide {
		// B.W conditional, T3 encoding: 20-bit signed offset.
		imm32 = (s << 20) | (j2 << 19) | (j1 << 18) | (imm10 << 11) | (imm11 << 1)
		if s != 0 {
			imm32 |= 0xffe00000
		}
	} else {
		return 0, false, false
	}

	target = addr + 4 + uint64(int32(imm32))
	return target, true, true
}

// decodeThumb1BL computes the target of a 16-bit-pair Thumb-1 BL instruction
// (format 19), adapted from the teacher's decodeThumbLongBranchWithLink: the
// high halfword contributes a 22-bit signed offset shifted left 12, the low
// halfword an 11-bit unsigned offset shifted left 1.
func decodeThumb1BL(hi, lo uint16, addr uint64) uint64 {
	hiOffset := uint32(hi&0x07ff) << 12
	if hiOffset&0x400000 != 0 {
		hiOffset |= 0xff800000
	}
	loOffset := uint32(lo&0x07ff) << 1
	return addr + 4 + uint64(int32(hiOffset)) + uint64(loOffset)
}

func popcount8(v uint8) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

func popcount16(v uint16) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}
