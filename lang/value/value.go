// Package value implements the Lox runtime value representation: a tagged
// Value over nil, boolean, number and heap-object references, and the heap
// Object variants strings and natives (the function object, chunk.Function,
// is defined in lang/chunk).
package value

import "fmt"

// Value is any runtime value a Lox program can manipulate. The concrete
// type implementing it is the tag: Nil, Bool and Number are small value
// types copied by assignment, while the Obj* types are always handled
// through a pointer, making a Value holding one a shared handle into the
// VM's object heap.
type Value interface {
	fmt.Stringer
	// Type names the value's dynamic type, for error messages and the
	// disassembler.
	Type() string
}

// Nil is the singleton nil value.
type Nil struct{}

func (Nil) String() string { return "nil" }
func (Nil) Type() string   { return "nil" }

// Bool is a boolean value.
type Bool bool

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (Bool) Type() string { return "boolean" }

// Number is a double-precision Lox number.
type Number float64

func (n Number) String() string { return formatNumber(float64(n)) }
func (Number) Type() string     { return "number" }

func formatNumber(f float64) string {
	// Integral values with magnitude below 1e15 print as plain integers
	// (so 1000000 prints as "1000000", where %g would give "1e+06");
	// every other value uses %g, as clox's printf("%g", ...) does.
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Truthy reports whether v is truthy under Lox's coercion rule: nil and
// false are falsey, everything else (including 0 and the empty string) is
// truthy.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case Nil:
		return false
	case Bool:
		return bool(v)
	default:
		return true
	}
}

// Equal reports whether a and b are equal under Lox's == semantics: values
// of different dynamic types are never equal; booleans and numbers compare
// by value; every heap object (strings, functions, natives) compares by
// reference identity, which is sound for strings because of interning
// (see Heap.Intern) and trivially sound for functions/natives since they
// are never duplicated once allocated; nil equals nil.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Bool:
		bb, ok := b.(Bool)
		return ok && a == bb
	case Number:
		bb, ok := b.(Number)
		return ok && a == bb
	default:
		ao, ok := a.(HeapObject)
		if !ok {
			return false
		}
		bo, ok := b.(HeapObject)
		return ok && ao == bo
	}
}
