package wasm

import (
	"encoding/binary"
	"math"
)

// Code accumulates the instruction bytes of one function body.
type Code struct {
	buf []byte
}

// Len returns the number of bytes emitted so far.
func (c *Code) Len() int { return len(c.buf) }

// Bytes returns the emitted instruction bytes.
func (c *Code) Bytes() []byte { return c.buf }

// Op emits opcodes that take no immediates.
func (c *Code) Op(ops ...Opcode) {
	for _, op := range ops {
		c.buf = append(c.buf, byte(op))
	}
}

func (c *Code) I32Const(v int32) {
	c.buf = append(c.buf, byte(OpI32Const))
	c.buf = AppendSleb128(c.buf, int64(v))
}

// I32ConstFixed emits i32.const with a five byte immediate.
func (c *Code) I32ConstFixed(v int32) {
	c.buf = append(c.buf, byte(OpI32Const))
	c.buf = AppendPaddedSleb32(c.buf, v)
}

func (c *Code) F32Const(v float32) {
	c.buf = append(c.buf, byte(OpF32Const))
	c.buf = binary.LittleEndian.AppendUint32(c.buf, math.Float32bits(v))
}

func (c *Code) F64Const(v float64) {
	c.buf = append(c.buf, byte(OpF64Const))
	c.buf = binary.LittleEndian.AppendUint64(c.buf, math.Float64bits(v))
}

func (c *Code) LocalGet(idx uint32) { c.indexed(OpLocalGet, idx) }
func (c *Code) LocalSet(idx uint32) { c.indexed(OpLocalSet, idx) }
func (c *Code) LocalTee(idx uint32) { c.indexed(OpLocalTee, idx) }
func (c *Code) Call(idx uint32)     { c.indexed(OpCall, idx) }
func (c *Code) Br(depth uint32)     { c.indexed(OpBr, depth) }
func (c *Code) BrIf(depth uint32)   { c.indexed(OpBrIf, depth) }

func (c *Code) indexed(op Opcode, idx uint32) {
	c.buf = append(c.buf, byte(op))
	c.buf = AppendUleb128(c.buf, idx)
}

// Memory emits a load or store with its memarg immediate.
func (c *Code) Memory(op Opcode, align, offset uint32) {
	c.buf = append(c.buf, byte(op))
	c.buf = AppendUleb128(c.buf, align)
	c.buf = AppendUleb128(c.buf, offset)
}

// Misc emits an instruction from the 0xFC family.
func (c *Code) Misc(sub uint32) {
	c.buf = append(c.buf, byte(OpMiscPrefix))
	c.buf = AppendUleb128(c.buf, sub)
}

// Structured emits block, loop or if with the given block type and
// returns the offset of the block type byte so it can be patched once the
// result type is known.
func (c *Code) Structured(op Opcode, blockType byte) int {
	c.buf = append(c.buf, byte(op), blockType)
	return len(c.buf) - 1
}

// PatchByte overwrites a previously emitted byte.
func (c *Code) PatchByte(pos int, b byte) {
	c.buf[pos] = b
}

// Append copies raw instruction bytes.
func (c *Code) Append(raw []byte) {
	c.buf = append(c.buf, raw...)
}

// FunctionBody frames code as a function body: local declarations run
// length encoded by type, the instructions, and the closing end.
func FunctionBody(locals []ValType, code []byte) []byte {
	type group struct {
		count uint32
		typ   ValType
	}
	var groups []group
	for _, l := range locals {
		if n := len(groups); n > 0 && groups[n-1].typ == l {
			groups[n-1].count++
			continue
		}
		groups = append(groups, group{1, l})
	}

	body := AppendUleb128(nil, uint32(len(groups)))
	for _, g := range groups {
		body = AppendUleb128(body, g.count)
		body = append(body, byte(g.typ))
	}
	body = append(body, code...)
	return append(body, byte(OpEnd))
}
