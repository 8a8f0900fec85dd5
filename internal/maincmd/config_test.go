package maincmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasNoTrace(t *testing.T) {
	cfg := DefaultConfig()
	require.False(t, cfg.Trace)
}

func TestLoadWithNoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.Trace)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	require.NoError(t, os.WriteFile("loxvm.yaml", []byte("trace: true\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Trace)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	require.NoError(t, os.WriteFile("loxvm.yaml", []byte("trace: false\n"), 0o644))
	t.Setenv("LOXVM_TRACE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Trace)
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}
