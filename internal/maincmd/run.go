package maincmd

import (
	"os"

	"github.com/mna/mainer"

	"github.com/loxlang/loxvm/lang/vm"
)

// RunFile reads the script at path, runs it to completion on a fresh VM,
// and returns the exit code spec.md's external interface mandates: 0 on
// success, 65 if compilation failed, 70 if a runtime error occurred, or
// 74 if the file could not be read.
func RunFile(stdio mainer.Stdio, path string) mainer.ExitCode {
	src, err := os.ReadFile(path)
	if err != nil {
		return exitForReadError(stdio, path, err)
	}

	machine := vm.New()
	machine.Stdout = stdio.Stdout
	machine.Stderr = stdio.Stderr

	result, _ := machine.Interpret(string(src))
	switch result {
	case vm.ResultCompileError:
		return ExitCompileError
	case vm.ResultRuntimeError:
		return ExitRuntimeError
	default:
		return ExitOK
	}
}
