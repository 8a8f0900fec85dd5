package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loxlang/loxvm/lang/chunk"
	"github.com/loxlang/loxvm/lang/value"
)

func compile(t *testing.T, source string) *chunk.Function {
	t.Helper()
	p := New(value.NewHeap())
	fn, err := p.Compile(source)
	require.NoError(t, err)
	require.NotNil(t, fn)
	return fn
}

func TestCompileArithmeticEmitsExpectedOps(t *testing.T) {
	fn := compile(t, "1 + 2 * 3;")
	var ops []chunk.Op
	for i := 0; i < len(fn.Chunk.Code); {
		op := chunk.Op(fn.Chunk.Code[i])
		ops = append(ops, op)
		switch op {
		case chunk.OpConstant:
			i += 2
		default:
			i++
		}
	}
	// CONSTANT 1, CONSTANT 2, CONSTANT 3, MULTIPLY, ADD, POP, NIL, RETURN
	require.Equal(t, []chunk.Op{
		chunk.OpConstant, chunk.OpConstant, chunk.OpConstant,
		chunk.OpMultiply, chunk.OpAdd, chunk.OpPop,
		chunk.OpNil, chunk.OpReturn,
	}, ops)
}

func TestCompileGlobalVarRoundTrips(t *testing.T) {
	fn := compile(t, `var a = "hi"; print a;`)
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpDefineGlobal))
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpGetGlobal))
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpPrint))
}

func TestCompileLocalsUseSlotOpcodes(t *testing.T) {
	fn := compile(t, `{ var a = 1; a = 2; }`)
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpSetLocal))
	require.NotContains(t, fn.Chunk.Code, byte(chunk.OpDefineGlobal))
}

func TestCompileFunctionArity(t *testing.T) {
	fn := compile(t, `fun add(a, b) { return a + b; } print add(1, 2);`)
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpConstant))

	var inner *chunk.Function
	for _, c := range fn.Chunk.Constants {
		if f, ok := c.(*chunk.Function); ok {
			inner = f
		}
	}
	require.NotNil(t, inner, "expected the compiled add() to land in the constant pool")
	require.Equal(t, 2, inner.Arity)
}

func TestCompileErrorsAccumulateAndSynchronize(t *testing.T) {
	_, err := New(value.NewHeap()).Compile(`var ; var y = 1 2;`)
	require.Error(t, err)
	// one error per statement: synchronizing after the first lets the
	// second be found too
	require.Equal(t, 2, strings.Count(err.Error(), "[line "))
}

func TestCompileUndefinedAssignmentTargetIsAnError(t *testing.T) {
	_, err := New(value.NewHeap()).Compile(`1 = 2;`)
	require.Error(t, err)
}

// TestCompileEmitsConstantLongPastPoolLimit exercises the CONSTANT_LONG
// path: once the constant pool holds more than 256 entries, emitConstant
// must switch from CONSTANT's 8-bit operand to CONSTANT_LONG's 24-bit
// one rather than failing to compile.
func TestCompileEmitsConstantLongPastPoolLimit(t *testing.T) {
	var src strings.Builder
	const n = 300
	for i := 0; i < n; i++ {
		fmt.Fprintf(&src, "%d;\n", i)
	}
	fn := compile(t, src.String())

	require.Len(t, fn.Chunk.Constants, n)
	require.Contains(t, fn.Chunk.Code, byte(chunk.OpConstantLong))

	// The 257th literal (index 256) is the first one that must be
	// addressed via CONSTANT_LONG.
	var sawLong bool
	for i := 0; i < len(fn.Chunk.Code); {
		op := chunk.Op(fn.Chunk.Code[i])
		switch op {
		case chunk.OpConstant:
			i += 2
		case chunk.OpConstantLong:
			idx := int(fn.Chunk.Code[i+1]) | int(fn.Chunk.Code[i+2])<<8 | int(fn.Chunk.Code[i+3])<<16
			require.GreaterOrEqual(t, idx, 256)
			require.Equal(t, value.Number(idx), fn.Chunk.Constants[idx])
			sawLong = true
			i += 4
		default:
			i++
		}
	}
	require.True(t, sawLong)
}

func TestEndCompilerAlwaysEmitsImplicitReturn(t *testing.T) {
	fn := compile(t, `1;`)
	code := fn.Chunk.Code
	require.Equal(t, byte(chunk.OpNil), code[len(code)-2])
	require.Equal(t, byte(chunk.OpReturn), code[len(code)-1])
}
