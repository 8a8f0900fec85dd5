package maincmd

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config holds the knobs that tune a loxvm run beyond what a single CLI
// invocation's flags express. It is assembled from, in increasing
// precedence: built-in defaults, an optional loxvm.yaml file, LOXVM_*
// environment variables, then CLI flags (applied by the caller after
// Load returns).
type Config struct {
	// Trace enables the VM's instruction-by-instruction execution trace
	// (the DEBUG_TRACE_EXECUTION equivalent), gated behind logrus's trace
	// level.
	Trace bool `yaml:"trace" env:"TRACE"`

	// HistoryFile is where the REPL persists its line history between
	// runs. Empty disables history persistence.
	HistoryFile string `yaml:"history_file" env:"HISTORY_FILE"`
}

// DefaultConfig returns the built-in defaults, before any file or
// environment overlay is applied.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	hist := ""
	if home != "" {
		hist = home + "/.loxvm_history"
	}
	return Config{HistoryFile: hist}
}

// Load builds a Config from defaults, an optional loxvm.yaml in the
// current directory, and LOXVM_* environment variables, in that order of
// increasing precedence. A missing config file is not an error; a
// malformed one is.
func Load() (Config, error) {
	cfg := DefaultConfig()

	if b, err := os.ReadFile("loxvm.yaml"); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing loxvm.yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading loxvm.yaml: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "LOXVM_"}); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	return cfg, nil
}
