package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"pyenvs/internal/collection"
	"pyenvs/internal/envinfo"
)

func TestEnvReporterKeepsRowKeyAcrossMerges(t *testing.T) {
	var msgs []tea.Msg
	r := NewEnvReporter(func(m tea.Msg) { msgs = append(msgs, m) })

	found := envinfo.NewEnv(envinfo.KindSystem, "/usr/bin/python3")
	merged := envinfo.NewEnv(envinfo.KindVenv, "/work/.venv/bin/python")
	merged.Version, _ = envinfo.ParseVersion("3.12.1")
	merged.Executable.SysPrefix = "/work/.venv"

	r.Changed(envinfo.ChangeEvent{New: &found})
	r.Changed(envinfo.ChangeEvent{Old: &found, New: &merged})
	r.Changed(envinfo.ChangeEvent{Old: &merged})
	r.Changed(envinfo.ChangeEvent{SearchLocation: "/work"})

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	first := msgs[0].(RowUpdateMsg)
	second := msgs[1].(RowUpdateMsg)
	third := msgs[2].(RowUpdateMsg)
	if first.Key != found.ID || second.Key != found.ID || third.Key != found.ID {
		t.Fatalf("row keys drifted: %q %q %q", first.Key, second.Key, third.Key)
	}
	if first.Fields["STATUS"] != StatusFound {
		t.Errorf("expected found, got %q", first.Fields["STATUS"])
	}
	if second.Fields["STATUS"] != StatusResolved || second.Fields["VERSION"] != "3.12.1" {
		t.Errorf("unexpected resolved fields %v", second.Fields)
	}
	if third.Fields["STATUS"] != StatusInvalid {
		t.Errorf("expected invalid, got %q", third.Fields["STATUS"])
	}
}

func TestEnvReporterProgress(t *testing.T) {
	var got []tea.Msg
	r := NewEnvReporter(func(m tea.Msg) { got = append(got, m) })
	r.Progress(collection.ProgressEvent{Stage: collection.StageAllPathsDiscovered})

	if len(got) != 1 || got[0].(StageMsg).Text != "Resolving" {
		t.Fatalf("unexpected messages %v", got)
	}
}

func TestDetectMode(t *testing.T) {
	var buf bytes.Buffer
	if got := DetectMode(&buf, false, true); got != ModeJSON {
		t.Errorf("expected json, got %s", got)
	}
	if got := DetectMode(&buf, true, false); got != ModePlain {
		t.Errorf("expected plain, got %s", got)
	}
	if got := DetectMode(&buf, false, false); got != ModePlain {
		t.Errorf("non-file writer should be plain, got %s", got)
	}
}

func TestStatusWriter(t *testing.T) {
	var buf syncBuffer
	sw := NewStatusWriter(&buf)
	sw.Update("Discovering")
	sw.Printf("found %d", 3)
	time.Sleep(250 * time.Millisecond)
	sw.Stop()
	sw.Stop()

	out := buf.String()
	if !strings.Contains(out, "found 3") {
		t.Errorf("expected permanent line, got %q", out)
	}
	if !strings.Contains(out, "Discovering") {
		t.Errorf("expected status text, got %q", out)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.5s"},
		{42 * time.Second, "42s"},
		{125 * time.Second, "2m05s"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestEnvRowFollowsColumns(t *testing.T) {
	env := envinfo.NewEnv(envinfo.KindPyenv, "/home/u/.pyenv/versions/3.11.4/bin/python")
	env.Version, _ = envinfo.ParseVersion("3.11.4")

	row := EnvRow(env, StatusCached)
	cols := EnvColumns()
	if len(row) != len(cols) {
		t.Fatalf("expected %d fields, got %d", len(cols), len(row))
	}
	want := []string{string(envinfo.KindPyenv), "3.11.4", "-", env.Executable.Filename, StatusCached}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %s: got %q, want %q", cols[i].Header, row[i], want[i])
		}
	}
}
