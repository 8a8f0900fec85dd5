// Package debug implements a read-only textual disassembler over
// lang/chunk.Chunk, in the spirit of lang/compiler/asm.go's Dasm in the
// teacher repository: it writes one line per instruction to a buffer
// rather than printing directly, so callers can route it to a logger, a
// test assertion, or a REPL command.
package debug

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/loxlang/loxvm/lang/chunk"
)

// Disassemble renders every instruction in c under the heading name,
// returning the formatted text. It never fails: an instruction stream cut
// short mid-operand is rendered with a "truncated chunk" marker instead of
// panicking, since the disassembler must stay usable while a compiler bug
// is being tracked down.
func Disassemble(c *chunk.Chunk, name string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = disassembleInstruction(&buf, c, offset)
	}
	return buf.String()
}

// Instruction renders a single instruction at offset, returning the
// formatted line (without a trailing newline) and the offset of the next
// instruction.
func Instruction(c *chunk.Chunk, offset int) (string, int) {
	var buf bytes.Buffer
	next := disassembleInstruction(&buf, c, offset)
	return string(bytes.TrimRight(buf.Bytes(), "\n")), next
}

func disassembleInstruction(buf *bytes.Buffer, c *chunk.Chunk, offset int) int {
	fmt.Fprintf(buf, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		fmt.Fprint(buf, "   | ")
	} else {
		fmt.Fprintf(buf, "%4d ", c.Lines[offset])
	}

	op := chunk.Op(c.Code[offset])
	width := 1
	switch op {
	case chunk.OpConstant, chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpCall,
		chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal:
		width = 2
	case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop:
		width = 3
	case chunk.OpConstantLong:
		width = 4
	}
	if offset+width > len(c.Code) {
		fmt.Fprintln(buf, "(truncated chunk)")
		return len(c.Code)
	}

	switch op {
	case chunk.OpConstant:
		return constantInstruction(buf, op, c, offset)
	case chunk.OpConstantLong:
		return constantLongInstruction(buf, op, c, offset)
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpCall:
		return byteInstruction(buf, op, c, offset)
	case chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal:
		return constantInstruction(buf, op, c, offset)
	case chunk.OpJump, chunk.OpJumpIfFalse:
		return jumpInstruction(buf, op, c, offset, 1)
	case chunk.OpLoop:
		return jumpInstruction(buf, op, c, offset, -1)
	default:
		return simpleInstruction(buf, op, offset)
	}
}

func simpleInstruction(buf *bytes.Buffer, op chunk.Op, offset int) int {
	fmt.Fprintf(buf, "%-16s\n", op)
	return offset + 1
}

func byteInstruction(buf *bytes.Buffer, op chunk.Op, c *chunk.Chunk, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(buf, "%-16s %4d\n", op, slot)
	return offset + 2
}

func constantInstruction(buf *bytes.Buffer, op chunk.Op, c *chunk.Chunk, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(buf, "%-16s %4d '%s'\n", op, idx, constantOrOutOfRange(c, int(idx)))
	return offset + 2
}

func constantLongInstruction(buf *bytes.Buffer, op chunk.Op, c *chunk.Chunk, offset int) int {
	idx := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8 | int(c.Code[offset+3])<<16
	fmt.Fprintf(buf, "%-16s %4d '%s'\n", op, idx, constantOrOutOfRange(c, idx))
	return offset + 4
}

func constantOrOutOfRange(c *chunk.Chunk, idx int) string {
	if idx < 0 || idx >= len(c.Constants) {
		return "?"
	}
	return c.Constants[idx].String()
}

func jumpInstruction(buf *bytes.Buffer, op chunk.Op, c *chunk.Chunk, offset int, sign int) int {
	jump := int(binary.LittleEndian.Uint16(c.Code[offset+1 : offset+3]))
	target := offset + 3 + sign*jump
	fmt.Fprintf(buf, "%-16s %4d -> %d\n", op, offset, target)
	return offset + 3
}
