package maincmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/mna/mainer"

	"github.com/loxlang/loxvm/lang/vm"
)

// REPL runs an interactive read-eval-print loop against a single
// persistent VM: each line the user enters is compiled and run in the
// same global/heap state as the line before it, so declarations made on
// one line are visible on the next, matching spec.md's "Read a line from
// stdin, feed to interpret" external interface. A compile or runtime
// error in one line is reported and the prompt continues, and an
// interrupt just prompts again; only EOF (or another read error) ends the
// session, always with exit code 0.
func REPL(stdio mainer.Stdio, cfg Config) mainer.ExitCode {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     cfg.HistoryFile,
		Stdin:           io.NopCloser(stdio.Stdin),
		Stdout:          stdio.Stdout,
		Stderr:          stdio.Stderr,
		InterruptPrompt: "^C",
		EOFPrompt:       "",
	})
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return ExitIOError
	}
	defer rl.Close()

	machine := vm.New()
	machine.Stdout = stdio.Stdout
	machine.Stderr = stdio.Stderr

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return ExitOK
			}
			fmt.Fprintln(stdio.Stderr, err)
			return ExitOK
		}
		if line == "" {
			continue
		}

		// Compile and runtime errors are reported by Interpret itself; the
		// REPL never exits because of them, it just prompts again.
		machine.Interpret(line)
	}
}
