package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"pyenvs/internal/envinfo"
)

func TestRefreshCommandJSONOutput(t *testing.T) {
	_, workspace := setupCLI(t)
	makeVenv(t, workspace)
	outputJSON = true

	stdout, _, err := execute(t, newRefreshCmd())
	if err != nil {
		t.Fatalf("refresh command returned error: %v", err)
	}

	var payload struct {
		Envs    []envinfo.Env `json:"envs"`
		Summary struct {
			Added   int `json:"added"`
			Removed int `json:"removed"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode json: %v\n%s", err, stdout)
	}
	if len(payload.Envs) != 1 {
		t.Fatalf("expected one env, got %d", len(payload.Envs))
	}
	if payload.Summary.Added != 1 || payload.Summary.Removed != 0 {
		t.Fatalf("unexpected summary %+v", payload.Summary)
	}
}

func TestRefreshCommandPlainOutputDropsDeletedEnvs(t *testing.T) {
	_, workspace := setupCLI(t)
	exe := makeVenv(t, workspace)

	stdout, _, err := execute(t, newRefreshCmd())
	if err != nil {
		t.Fatalf("first refresh returned error: %v", err)
	}
	if !strings.Contains(stdout, "Added: 1") {
		t.Fatalf("expected one added env, got %q", stdout)
	}

	if err := os.Remove(exe); err != nil {
		t.Fatalf("remove interpreter: %v", err)
	}

	stdout, _, err = execute(t, newRefreshCmd())
	if err != nil {
		t.Fatalf("second refresh returned error: %v", err)
	}
	if !strings.Contains(stdout, "0 environments") {
		t.Fatalf("expected empty table, got %q", stdout)
	}
}

func TestRefreshCountsRecord(t *testing.T) {
	a := envinfo.NewEnv(envinfo.KindVenv, "/a/bin/python")
	b := a.Clone()
	b.Name = "b"

	c := &refreshCounts{}
	c.record(envinfo.ChangeEvent{New: &a})
	c.record(envinfo.ChangeEvent{Old: &a, New: &b})
	c.record(envinfo.ChangeEvent{Old: &b})
	c.record(envinfo.ChangeEvent{SearchLocation: "/a"})

	if c.Added != 1 || c.Updated != 1 || c.Removed != 1 {
		t.Fatalf("unexpected counts %+v", c)
	}
}
