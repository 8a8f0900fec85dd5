// Package chunk implements the bytecode container: a flat byte buffer, a
// parallel per-byte line table for runtime error reporting, and the
// constant pool the buffer's CONSTANT operands index into. It also defines
// Function, the compiled, callable heap object whose body is a Chunk -
// Function lives here rather than in lang/value so that a Chunk's
// constant pool (which holds value.Value, for nested function constants
// among other things) never has to import back a package that describes
// it, keeping the value -> chunk dependency a one-way street.
package chunk

import (
	"fmt"

	"github.com/loxlang/loxvm/lang/value"
)

// Chunk is a unit of compiled bytecode: the instruction stream, a
// same-length table mapping each byte back to the source line it was
// compiled from, and the ordered pool of constant values its CONSTANT
// instructions index into. Every Write grows Code and Lines together, so
// len(Code) == len(Lines) holds as an invariant for the lifetime of a
// Chunk.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

// Write appends a single bytecode byte, recording the source line it came
// from. Go's append already grows the backing array geometrically, which
// is the idiomatic equivalent of clox's GROW_ARRAY/GROW_CAPACITY doubling
// macros, so Chunk does not manage capacity itself.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// AddConstant appends v to the constant pool and returns its index, for
// use as a CONSTANT instruction's operand.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Function is a compiled Lox function (or, with a nil Name, a top-level
// script): its parameter count, its compiled body, and the name it was
// declared with, for stack traces and the disassembler.
type Function struct {
	value.ObjHeader
	Arity int
	Chunk Chunk
	Name  *value.ObjString
}

func (f *Function) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars())
}

func (f *Function) Type() string { return "function" }
