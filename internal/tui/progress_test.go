package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRowUpdateMsg(t *testing.T) {
	m := NewProgressModel("test", []Column{
		{Header: "KIND", Width: 12},
		{Header: "STATUS", Width: 10},
		{Header: "VERSION", Width: 10},
	})
	m.AddRow("env:a", []string{"virt-venv", "found", "-"})
	m.AddRow("env:b", []string{"global-system", "found", "-"})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "env:a",
		Fields: map[string]string{"STATUS": "resolved", "VERSION": "3.12.1"},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != "resolved" {
		t.Errorf("expected STATUS=resolved, got %q", m.rows[0].Fields[1])
	}
	if m.rows[0].Fields[2] != "3.12.1" {
		t.Errorf("expected VERSION=3.12.1, got %q", m.rows[0].Fields[2])
	}
	if m.rows[1].Fields[1] != "found" {
		t.Errorf("expected row 2 STATUS=found, got %q", m.rows[1].Fields[1])
	}
}

func TestRowUpdateMsgAppendsNewKeys(t *testing.T) {
	m := NewProgressModel("test", []Column{
		{Header: "KIND", Width: 12},
		{Header: "STATUS", Width: 10},
	})

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "env:new",
		Fields: map[string]string{"KIND": "virt-conda", "STATUS": "found"},
	})
	m = updated.(ProgressModel)

	rows := m.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Key != "env:new" || rows[0].Fields[0] != "virt-conda" {
		t.Errorf("unexpected row %+v", rows[0])
	}
}

func TestStageMsg(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})
	updated, _ := m.Update(StageMsg{Text: "Resolving"})
	m = updated.(ProgressModel)

	if !strings.Contains(m.View(), "Resolving...") {
		t.Error("expected footer to show the stage")
	}
}

func TestWorkDoneMsg(t *testing.T) {
	m := NewProgressModel("test", []Column{
		{Header: "STATUS", Width: 10},
	})

	updated, cmd := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after WorkDoneMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestErrorMsg(t *testing.T) {
	m := NewProgressModel("test", []Column{
		{Header: "STATUS", Width: 10},
	})

	updated, cmd := m.Update(ErrorMsg{Err: tea.ErrProgramKilled})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ErrorMsg")
	}
	if m.Err() == nil {
		t.Error("expected Err() to be non-nil")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
	if !strings.Contains(m.View(), "Error:") {
		t.Error("expected error view")
	}
}

func TestView(t *testing.T) {
	m := NewProgressModel("Discovering environments", []Column{
		{Header: "KIND", Width: 14},
		{Header: "STATUS", Width: 10},
		{Header: "NAME", Width: 10},
	})
	m.AddRow("env:a", []string{"virt-venv", "found", "proj"})
	m.AddRow("env:b", []string{"global-system", "resolved", "-"})

	view := m.View()
	for _, want := range []string{"Discovering environments", "KIND", "STATUS", "NAME", "virt-venv", "proj", "found", "resolved"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestNonEmptyOrDash(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "-"},
		{"  ", "-"},
		{"hello", "hello"},
		{" hello ", "hello"},
	}
	for _, tt := range tests {
		got := NonEmptyOrDash(tt.input)
		if got != tt.want {
			t.Errorf("NonEmptyOrDash(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer string here", 10, "a longe..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"", 5, ""},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateWithEllipsis(tt.input, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestMarqueeText(t *testing.T) {
	tests := []struct {
		text    string
		width   int
		tick    int
		want    string
		wantLen int
	}{
		{"short", 10, 0, "short", 5},
		{"/opt/conda/bin/python", 5, 0, "/opt/", 5},
		{"/opt/conda/bin/python", 5, 1, "opt/c", 5},
		{"abcdef", 4, 0, "abcd", 4},
		{"abcdef", 4, 6, "   a", 4},
	}
	for _, tt := range tests {
		got := marqueeText(tt.text, tt.width, tt.tick)
		if len(got) != tt.wantLen {
			t.Errorf("marqueeText(%q, %d, %d) length = %d, want %d", tt.text, tt.width, tt.tick, len(got), tt.wantLen)
		}
		if got != tt.want {
			t.Errorf("marqueeText(%q, %d, %d) = %q, want %q", tt.text, tt.width, tt.tick, got, tt.want)
		}
	}
}

func TestTickMsg(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})

	updated, cmd := m.Update(tickMsg{})
	m = updated.(ProgressModel)

	if m.tick != 1 {
		t.Errorf("expected tick=1 after tickMsg, got %d", m.tick)
	}
	if cmd == nil {
		t.Error("expected next tick command")
	}
}

func TestTickStopsAfterDone(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})
	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	_, cmd := m.Update(tickMsg{})
	if cmd != nil {
		t.Error("expected no tick command after done")
	}
}

func TestProgressCounts(t *testing.T) {
	m := NewProgressModel("test", []Column{
		{Header: "KIND", Width: 5},
		{Header: "STATUS", Width: 10},
	})
	m.AddRow("a", []string{"virt-venv", StatusFound})
	m.AddRow("b", []string{"virt-venv", StatusResolving})
	m.AddRow("c", []string{"global-system", StatusResolved})
	m.AddRow("d", []string{"virt-venv", StatusInvalid})

	settled, total := m.progressCounts()
	if total != 4 {
		t.Errorf("expected total=4, got %d", total)
	}
	if settled != 2 {
		t.Errorf("expected settled=2, got %d", settled)
	}
}

func TestFooterHiddenWhenDone(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})
	m.AddRow("a", []string{StatusFound})
	if !strings.Contains(m.View(), "Discovering...") {
		t.Error("expected footer while running")
	}

	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	if strings.Contains(m.View(), "Discovering...") {
		t.Error("expected no footer when done")
	}
}

func TestCtrlC(t *testing.T) {
	m := NewProgressModel("test", []Column{{Header: "STATUS", Width: 10}})

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}
