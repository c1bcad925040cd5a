package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"pyenvs/internal/inspect"
)

// fakeInterpreter answers the inspection script as a 64-bit 3.12.1 whose
// prefix is two levels above the executable.
type fakeInterpreter struct{}

func (fakeInterpreter) Run(_ context.Context, command string, _ []string, _ inspect.RunOptions) (inspect.RunResult, error) {
	prefix := filepath.Dir(filepath.Dir(command))
	out := fmt.Sprintf(`{"versionInfo": [3, 12, 1, "final", 0], "sysPrefix": %q, "sysVersion": "3.12.1 (main)", "is64Bit": true}`, prefix)
	return inspect.RunResult{Stdout: []byte(out)}, nil
}

const workspaceOnlyConfig = `workspace_roots:
  - %s
locators:
  conda: false
  pyenv: false
  global_virtualenvs: false
  poetry: false
  path: false
  windows_store: false
  windows_registry: false
`

// setupCLI points pyenvs at a temporary home whose config enables only the
// workspace locator over a fresh workspace. Package flags are restored when
// the test ends.
func setupCLI(t *testing.T) (home, workspace string) {
	t.Helper()

	prevConfig, prevJSON, prevVerbose, prevNoCache := configFile, outputJSON, verbose, noCache
	prevRunner := inspectRunner
	prevList, prevRefresh := listFlags, refreshFlags
	prevMigrateTo, prevMigrateDry := migrateTo, migrateDryRun
	t.Cleanup(func() {
		configFile, outputJSON, verbose, noCache = prevConfig, prevJSON, prevVerbose, prevNoCache
		inspectRunner = prevRunner
		listFlags, refreshFlags = prevList, prevRefresh
		migrateTo, migrateDryRun = prevMigrateTo, prevMigrateDry
	})

	configFile, outputJSON, verbose, noCache = "", false, false, false
	listFlags, refreshFlags = queryFlags{}, queryFlags{}
	inspectRunner = fakeInterpreter{}

	home = t.TempDir()
	workspace = t.TempDir()
	t.Setenv("PYENVS_HOME", home)

	cfg := fmt.Sprintf(workspaceOnlyConfig, workspace)
	if err := os.WriteFile(filepath.Join(home, "pyenvs.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return home, workspace
}

// makeVenv creates dir/.venv with a pyvenv.cfg and an interpreter stub.
func makeVenv(t *testing.T, dir string) string {
	t.Helper()
	venv := filepath.Join(dir, ".venv")
	if err := os.MkdirAll(filepath.Join(venv, "bin"), 0o755); err != nil {
		t.Fatalf("mkdir venv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(venv, "pyvenv.cfg"), []byte("home = /usr/bin\n"), 0o644); err != nil {
		t.Fatalf("write pyvenv.cfg: %v", err)
	}
	exe := filepath.Join(venv, "bin", "python")
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write interpreter: %v", err)
	}
	return exe
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
