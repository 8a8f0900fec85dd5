// Package maincmd wires the CLI: flag parsing, configuration loading, and
// the two external interfaces spec.md describes - run a file, or drop
// into an interactive REPL - onto a lang/vm.VM. Its shape (a Cmd struct
// driven by github.com/mna/mainer, exit codes returned from Main) follows
// the teacher's internal/maincmd.Cmd.
package maincmd

import (
	"fmt"

	"github.com/mna/mainer"
	"github.com/sirupsen/logrus"
)

const binName = "loxvm"

// Exit codes match spec.md's sysexits-style contract for the file-run
// mode: 0 success, 65 compile error, 70 runtime error, 74 I/O error.
const (
	ExitOK           mainer.ExitCode = 0
	ExitCompileError mainer.ExitCode = 65
	ExitRuntimeError mainer.ExitCode = 70
	ExitIOError      mainer.ExitCode = 74
)

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Bytecode interpreter for the Lox programming language.

With a <path> argument, reads and runs that file, then exits with 0 on
success, 65 on a compile error, 70 on a runtime error, or 74 if the file
could not be read.

With no arguments, starts an interactive REPL: each line is compiled and
run as it is entered, and the prompt keeps running after a compile or
runtime error in one line.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --trace                   Enable instruction-level execution tracing.
`, binName)
)

// Cmd is the loxvm command-line entry point, populated by a mainer.Parser
// from flags only (environment variables are read by Load, not by the
// parser) before Main dispatches to RunFile or REPL.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`
	Trace   bool `flag:"trace"`

	args  []string
	flags map[string]bool
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) > 1 {
		return fmt.Errorf("at most one file path may be given, got %d", len(c.args))
	}
	return nil
}

// Main parses args, handles --help/--version, then either runs the given
// file or starts the REPL, returning the process exit code.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return ExitOK
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return ExitOK
	}

	cfg, err := Load()
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return ExitIOError
	}
	if c.Trace {
		cfg.Trace = true
	}
	if cfg.Trace {
		logrus.SetLevel(logrus.TraceLevel)
	}

	if len(c.args) == 1 {
		return RunFile(stdio, c.args[0])
	}
	return REPL(stdio, cfg)
}

// exitForReadError reports a failure to read the script file and maps it
// to spec.md's I/O exit code.
func exitForReadError(stdio mainer.Stdio, path string, err error) mainer.ExitCode {
	fmt.Fprintf(stdio.Stderr, "can't read file %q: %s\n", path, err)
	return ExitIOError
}
