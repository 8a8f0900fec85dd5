package debug

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loxlang/loxvm/lang/chunk"
	"github.com/loxlang/loxvm/lang/value"
)

func TestDisassembleSimpleChunk(t *testing.T) {
	var c chunk.Chunk
	idx := c.AddConstant(value.Number(42))
	c.Write(byte(chunk.OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(chunk.OpReturn), 1)

	out := Disassemble(&c, "test")
	require.Contains(t, out, "== test ==")
	require.Contains(t, out, "OP_CONSTANT")
	require.Contains(t, out, "42")
	require.Contains(t, out, "OP_RETURN")
}

func TestInstructionAdvancesPastOperands(t *testing.T) {
	var c chunk.Chunk
	idx := c.AddConstant(value.Number(1))
	c.Write(byte(chunk.OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(chunk.OpReturn), 1)

	line, next := Instruction(&c, 0)
	require.Contains(t, line, "OP_CONSTANT")
	require.Equal(t, 2, next)

	line, next = Instruction(&c, next)
	require.Contains(t, line, "OP_RETURN")
	require.Equal(t, 3, next)
}

func TestJumpInstructionDecodesLittleEndianOffset(t *testing.T) {
	var c chunk.Chunk
	c.Write(byte(chunk.OpJump), 1)
	// little-endian 16-bit offset of 0x0102: low byte first
	c.Write(0x02, 1)
	c.Write(0x01, 1)

	line, next := Instruction(&c, 0)
	require.Equal(t, 3, next)
	require.Contains(t, line, "-> 261") // offset+3 + 0x0102 == 0 + 3 + 258
}
