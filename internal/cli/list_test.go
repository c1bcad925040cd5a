package cli

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"pyenvs/internal/envinfo"
	"pyenvs/internal/paths"
)

func TestListCommandTableOutput(t *testing.T) {
	_, workspace := setupCLI(t)
	exe := makeVenv(t, workspace)

	stdout, _, err := execute(t, newListCmd())
	if err != nil {
		t.Fatalf("list command returned error: %v", err)
	}

	if !strings.Contains(stdout, "KIND") || !strings.Contains(stdout, "EXECUTABLE") {
		t.Fatalf("expected table headers in output, got %q", stdout)
	}
	if !strings.Contains(stdout, string(envinfo.KindVenv)) {
		t.Fatalf("expected venv row in output, got %q", stdout)
	}
	if !strings.Contains(stdout, filepath.Base(filepath.Dir(filepath.Dir(exe)))) {
		t.Fatalf("expected executable in output, got %q", stdout)
	}
	if !strings.Contains(stdout, "1 environments") {
		t.Fatalf("expected count line, got %q", stdout)
	}
}

func TestListCommandJSONOutput(t *testing.T) {
	_, workspace := setupCLI(t)
	makeVenv(t, workspace)
	outputJSON = true

	stdout, _, err := execute(t, newListCmd())
	if err != nil {
		t.Fatalf("list command returned error: %v", err)
	}

	var payload struct {
		Count int           `json:"count"`
		Envs  []envinfo.Env `json:"envs"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode json: %v\n%s", err, stdout)
	}
	if payload.Count != 1 || len(payload.Envs) != 1 {
		t.Fatalf("expected one env, got %+v", payload)
	}
	env := payload.Envs[0]
	if env.Kind != envinfo.KindVenv {
		t.Errorf("expected kind %s, got %s", envinfo.KindVenv, env.Kind)
	}
	if got := env.Version.String(); got != "3.12.1" {
		t.Errorf("expected resolved version 3.12.1, got %q", got)
	}
	if env.Arch != envinfo.ArchX64 {
		t.Errorf("expected x64, got %q", env.Arch)
	}
}

func TestListCommandKindFilter(t *testing.T) {
	_, workspace := setupCLI(t)
	makeVenv(t, workspace)
	outputJSON = true

	stdout, _, err := execute(t, newListCmd(), "--kind", string(envinfo.KindConda))
	if err != nil {
		t.Fatalf("list command returned error: %v", err)
	}
	if !strings.Contains(stdout, `"count": 0`) {
		t.Fatalf("expected no conda envs, got %s", stdout)
	}
}

func TestListCommandRejectsUnknownKind(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, newListCmd(), "--kind", "snake")
	if err == nil || !strings.Contains(err.Error(), "unknown environment kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestListCommandNoCacheLeavesNothingBehind(t *testing.T) {
	home, workspace := setupCLI(t)
	makeVenv(t, workspace)
	noCache = true

	if _, _, err := execute(t, newListCmd()); err != nil {
		t.Fatalf("list command returned error: %v", err)
	}
	if ok, _ := paths.FileExists(filepath.Join(home, "envs.json")); ok {
		t.Fatalf("expected no cache file with --no-cache")
	}
}

func TestSortEnvsByKindThenExecutable(t *testing.T) {
	envs := []envinfo.Env{
		envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3"),
		envinfo.NewEnv(envinfo.KindVenv, "/b/.venv/bin/python"),
		envinfo.NewEnv(envinfo.KindVenv, "/a/.venv/bin/python"),
		envinfo.NewEnv(envinfo.KindConda, "/c/envs/x/bin/python"),
	}
	sortEnvs(envs)

	want := []string{"/c/envs/x/bin/python", "/a/.venv/bin/python", "/b/.venv/bin/python", "/usr/bin/python3"}
	for i, env := range envs {
		if env.Executable.Filename != envinfo.NormalizePath(want[i]) && env.Executable.Filename != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, env.Executable.Filename, want[i])
		}
	}
}
