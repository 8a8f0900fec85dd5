package vm

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, source string) (stdout, stderr string, result Result) {
	t.Helper()
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut
	result, _ = machine.Interpret(source)
	return out.String(), errOut.String(), result
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _, result := run(t, "print 1 + 2 * 3;")
	require.Equal(t, ResultOK, result)
	require.Equal(t, "7\n", out)
}

func TestStringInterningEquality(t *testing.T) {
	out, _, result := run(t, `var a = "hi"; var b = "hi"; print a == b;`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "true\n", out)
}

func TestWhileLoop(t *testing.T) {
	out, _, result := run(t, "var i = 0; while (i < 3) { print i; i = i + 1; }")
	require.Equal(t, ResultOK, result)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestRecursiveFunctionCall(t *testing.T) {
	out, _, result := run(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "55\n", out)
}

func TestStringConcatenation(t *testing.T) {
	out, _, result := run(t, `print "a" + "b" + "c";`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "abc\n", out)
}

func TestRuntimeErrorAddingNumberAndString(t *testing.T) {
	out, errOut, result := run(t, `print 1 + "x";`)
	require.Equal(t, ResultRuntimeError, result)
	require.Empty(t, out)
	require.Contains(t, errOut, "Operands")
}

func TestForLoopDesugarsToWhile(t *testing.T) {
	out, _, result := run(t, `for (var i = 0; i < 3; i = i + 1) print i;`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "0\n1\n2\n", out)
}

func TestAndOrShortCircuit(t *testing.T) {
	out, _, result := run(t, `
		fun sideEffect() { print "called"; return true; }
		print false and sideEffect();
		print true or sideEffect();
	`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "false\ntrue\n", out, "short-circuited operands must never run")
	require.False(t, strings.Contains(out, "called"))
}

func TestUndefinedGlobalIsRuntimeError(t *testing.T) {
	_, errOut, result := run(t, `print undefinedVariable;`)
	require.Equal(t, ResultRuntimeError, result)
	require.Contains(t, errOut, "Undefined variable")
}

func TestCompileErrorReportsAndDoesNotRun(t *testing.T) {
	out, errOut, result := run(t, `print ;`)
	require.Equal(t, ResultCompileError, result)
	require.Empty(t, out)
	require.NotEmpty(t, errOut)
}

func TestClockNativeReturnsANumber(t *testing.T) {
	out, _, result := run(t, `print clock() >= 0;`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "true\n", out)
}

func TestConstantLongExecutesPastPoolLimit(t *testing.T) {
	var src strings.Builder
	const n = 300
	for i := 0; i < n; i++ {
		fmt.Fprintf(&src, "%d;\n", i)
	}
	fmt.Fprintf(&src, "print %d;\n", n-1)

	out, _, result := run(t, src.String())
	require.Equal(t, ResultOK, result)
	require.Equal(t, "299\n", out)
}

func TestRuntimeErrorResetsStateForNextInterpret(t *testing.T) {
	// A runtime error mid-call resets stackTop/frameCount rather than
	// leaving the stack in a state where a subsequent Interpret call on the
	// same VM could read stale values from the aborted call.
	var out, errOut bytes.Buffer
	machine := New()
	machine.Stdout = &out
	machine.Stderr = &errOut

	_, _ = machine.Interpret(`print 1 + "x";`)
	out.Reset()
	result, _ := machine.Interpret(`print 42;`)
	require.Equal(t, ResultOK, result)
	require.Equal(t, "42\n", out.String())
}
