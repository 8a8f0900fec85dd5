// Package vm implements the stack-based virtual machine that executes
// compiled lang/chunk.Chunk bytecode. Its shape - a Stdout/Stderr-carrying
// VM struct, logrus-gated execution tracing - follows the teacher's
// lang/machine.Thread; the opcode dispatch loop and call-frame mechanics
// themselves follow the clox design via other_examples/rami3l-golox,
// since the teacher's own machine executes a different,
// register-free-but-AST-derived bytecode.
package vm

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dolthub/swiss"
	"github.com/sirupsen/logrus"

	"github.com/loxlang/loxvm/lang/chunk"
	"github.com/loxlang/loxvm/lang/compiler"
	"github.com/loxlang/loxvm/lang/debug"
	"github.com/loxlang/loxvm/lang/value"
)

// FramesMax bounds the depth of nested function calls; exceeding it is a
// runtime "stack overflow" error rather than a Go panic.
const FramesMax = 64

// StackMax bounds the number of operand-stack slots available across all
// active frames.
const StackMax = FramesMax * 256

// Result classifies how Interpret finished, matching spec.md's three
// outcomes so a caller (the REPL, the file runner) can map each to its own
// process exit code.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

// frame is one activation record: the function executing, the index of
// the next instruction to run, and the base offset into the VM's value
// stack where this call's locals (including the function itself, at
// slotsBase) begin.
type frame struct {
	function  *chunk.Function
	ip        int
	slotsBase int
}

// VM is a single-threaded Lox bytecode interpreter. It is not safe for
// concurrent use; running more than one program at a time means creating
// more than one VM.
type VM struct {
	// Stdout and Stderr are where `print` statements and runtime error
	// backtraces are written, respectively. If nil, os.Stdout / os.Stderr
	// are used.
	Stdout io.Writer
	Stderr io.Writer

	heap    *value.Heap
	globals *swiss.Map[*value.ObjString, value.Value]

	stack      [StackMax]value.Value
	stackTop   int
	frames     [FramesMax]frame
	frameCount int

	start time.Time
}

// New returns a ready-to-use VM with its native functions already
// registered.
func New() *VM {
	vm := &VM{
		heap:    value.NewHeap(),
		globals: swiss.NewMap[*value.ObjString, value.Value](64),
		start:   time.Now(),
	}
	vm.defineNative("clock", vm.nativeClock)
	return vm
}

func (vm *VM) stdout() io.Writer {
	if vm.Stdout != nil {
		return vm.Stdout
	}
	return os.Stdout
}

func (vm *VM) stderr() io.Writer {
	if vm.Stderr != nil {
		return vm.Stderr
	}
	return os.Stderr
}

// Interpret compiles and runs source as a top-level script, returning the
// classified Result and, on a compile or runtime error, the error that
// caused it. Per the language's resource model, a running script has no
// suspension points and cannot be cancelled from the outside: it runs to
// completion, to a runtime error, or never starts because it failed to
// compile.
func (vm *VM) Interpret(source string) (Result, error) {
	p := compiler.New(vm.heap)
	fn, err := p.Compile(source)
	if err != nil {
		fmt.Fprintln(vm.stderr(), err)
		return ResultCompileError, err
	}

	vm.stackTop = 0
	vm.frameCount = 0
	vm.push(fn)
	if err := vm.call(fn, 0); err != nil {
		return ResultRuntimeError, err
	}

	if err := vm.run(); err != nil {
		// run (via runtimeError) has already written the message and the
		// frame backtrace to Stderr; don't print it a second time.
		return ResultRuntimeError, err
	}
	return ResultOK, nil
}

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// run executes instructions from the current frame until a top-level
// RETURN or a runtime error. There are no suspension points: once started,
// a script runs to completion or to a runtime error, matching the
// language's single-threaded, non-cancellable resource model.
func (vm *VM) run() error {
	fr := &vm.frames[vm.frameCount-1]

	for {
		if logrus.IsLevelEnabled(logrus.TraceLevel) {
			vm.traceInstruction(fr)
		}

		op := chunk.Op(vm.readByte(fr))
		switch op {
		case chunk.OpConstant:
			vm.push(fr.function.Chunk.Constants[vm.readByte(fr)])
		case chunk.OpConstantLong:
			idx := int(vm.readByte(fr)) | int(vm.readByte(fr))<<8 | int(vm.readByte(fr))<<16
			vm.push(fr.function.Chunk.Constants[idx])
		case chunk.OpNil:
			vm.push(value.Nil{})
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()
		case chunk.OpGetLocal:
			slot := vm.readByte(fr)
			vm.push(vm.stack[fr.slotsBase+int(slot)])
		case chunk.OpSetLocal:
			slot := vm.readByte(fr)
			vm.stack[fr.slotsBase+int(slot)] = vm.peek(0)
		case chunk.OpGetGlobal:
			name := vm.readString(fr)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars())
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := vm.readString(fr)
			vm.globals.Put(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readString(fr)
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars())
			}
			vm.globals.Put(name, vm.peek(0))
		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}
		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryNumber(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}
		case chunk.OpNot:
			vm.push(value.Bool(!value.Truthy(vm.pop())))
		case chunk.OpNegate:
			n, ok := vm.peek(0).(value.Number)
			if !ok {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.pop()
			vm.push(-n)
		case chunk.OpPrint:
			fmt.Fprintln(vm.stdout(), vm.pop().String())
		case chunk.OpJump:
			offset := vm.readShort(fr)
			fr.ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readShort(fr)
			if !value.Truthy(vm.peek(0)) {
				fr.ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readShort(fr)
			fr.ip -= int(offset)
		case chunk.OpCall:
			argCount := int(vm.readByte(fr))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			fr = &vm.frames[vm.frameCount-1]
		case chunk.OpReturn:
			result := vm.pop()
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = fr.slotsBase
			vm.push(result)
			fr = &vm.frames[vm.frameCount-1]
		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) readByte(fr *frame) byte {
	b := fr.function.Chunk.Code[fr.ip]
	fr.ip++
	return b
}

// readShort decodes a little-endian 16-bit jump offset.
func (vm *VM) readShort(fr *frame) uint16 {
	lo, hi := vm.readByte(fr), vm.readByte(fr)
	return uint16(lo) | uint16(hi)<<8
}

func (vm *VM) readString(fr *frame) *value.ObjString {
	idx := vm.readByte(fr)
	return fr.function.Chunk.Constants[idx].(*value.ObjString)
}

func (vm *VM) binaryNumber(op func(a, b float64) value.Value) error {
	b, aOK := vm.peek(0).(value.Number)
	a, bOK := vm.peek(1).(value.Number)
	if !aOK || !bOK {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(op(float64(a), float64(b)))
	return nil
}

// add implements ADD's two overloads: number + number and string +
// string (concatenation). Mixed operands are a runtime error.
func (vm *VM) add() error {
	b, c := vm.peek(0), vm.peek(1)
	switch bv := b.(type) {
	case value.Number:
		if av, ok := c.(value.Number); ok {
			vm.pop()
			vm.pop()
			vm.push(av + bv)
			return nil
		}
	case *value.ObjString:
		if av, ok := c.(*value.ObjString); ok {
			vm.pop()
			vm.pop()
			vm.push(vm.heap.Intern(av.Chars() + bv.Chars()))
			return nil
		}
	}
	return vm.runtimeError("Operands must be two numbers or two strings.")
}

func (vm *VM) callValue(callee value.Value, argCount int) error {
	switch c := callee.(type) {
	case *chunk.Function:
		return vm.call(c, argCount)
	case *value.Native:
		args := vm.stack[vm.stackTop-argCount : vm.stackTop]
		result, err := c.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err)
		}
		vm.stackTop -= argCount + 1
		vm.push(result)
		return nil
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(fn *chunk.Function, argCount int) error {
	if argCount != fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = frame{function: fn, ip: 0, slotsBase: vm.stackTop - argCount - 1}
	vm.frameCount++
	return nil
}

func (vm *VM) defineNative(name string, fn func(args []value.Value) (value.Value, error)) {
	nameObj := vm.heap.Intern(name)
	native := &value.Native{Name: name, Fn: fn}
	vm.heap.Alloc(native)
	vm.globals.Put(nameObj, native)
}

func (vm *VM) nativeClock(_ []value.Value) (value.Value, error) {
	return value.Number(time.Since(vm.start).Seconds()), nil
}

// runtimeError formats msg, prints a frame-by-frame backtrace (innermost
// first, matching clox's runtimeError) to Stderr, and returns the
// resulting error so callers can propagate it as Interpret's return
// value.
func (vm *VM) runtimeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	err := fmt.Errorf("%s", msg)

	fmt.Fprintln(vm.stderr(), msg)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		line := 0
		if fr.ip-1 >= 0 && fr.ip-1 < len(fr.function.Chunk.Lines) {
			line = fr.function.Chunk.Lines[fr.ip-1]
		}
		name := "script"
		if fr.function.Name != nil {
			name = fr.function.Name.Chars() + "()"
		}
		fmt.Fprintf(vm.stderr(), "[line %d] in %s\n", line, name)
	}

	vm.stackTop = 0
	vm.frameCount = 0
	return err
}

// traceInstruction logs the current stack contents and the instruction
// about to execute, the Go analogue of clox's DEBUG_TRACE_EXECUTION block,
// gated behind logrus's trace level instead of a compile-time #ifdef.
func (vm *VM) traceInstruction(fr *frame) {
	var stackRepr string
	for i := 0; i < vm.stackTop; i++ {
		stackRepr += fmt.Sprintf("[ %s ]", vm.stack[i].String())
	}
	line, _ := debug.Instruction(&fr.function.Chunk, fr.ip)
	logrus.Tracef("%-32s %s", stackRepr, line)
}
