package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func fetchModel(names ...string) ProgressModel {
	m := NewProgressModel("Fetching toolchains", FetchColumns())
	for _, name := range names {
		m.AddRow(name, PendingRow(name))
	}
	return m
}

func TestRowUpdateMsg(t *testing.T) {
	m := fetchModel("avr-gcc", "arm-none-eabi")

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "avr-gcc",
		Fields: map[string]string{StatusColumn: "downloading", ColVersion: "7.3.0"},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != "downloading" {
		t.Errorf("expected STATUS=downloading, got %q", m.rows[0].Fields[1])
	}
	if m.rows[0].Fields[2] != "7.3.0" {
		t.Errorf("expected VERSION=7.3.0, got %q", m.rows[0].Fields[2])
	}
	if m.rows[1].Fields[1] != "pending" {
		t.Errorf("expected row 2 STATUS=pending, got %q", m.rows[1].Fields[1])
	}
}

func TestRowUpdateMsg_UnknownKey(t *testing.T) {
	m := fetchModel("avr-gcc")

	updated, _ := m.Update(RowUpdateMsg{
		Key:    "ghost",
		Fields: map[string]string{StatusColumn: "done"},
	})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[1] != "pending" {
		t.Errorf("expected STATUS unchanged, got %q", m.rows[0].Fields[1])
	}
}

func TestWorkDoneMsg(t *testing.T) {
	m := fetchModel()

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
	m := fetchModel()

	updated, cmd := m.Update(ErrorMsg{Err: tea.ErrProgramKilled})
	m = updated.(ProgressModel)

	if !m.Done() || m.Err() == nil {
		t.Error("expected a finished model carrying the error")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
	if !strings.Contains(m.View(), "Error:") {
		t.Error("expected the error to be rendered")
	}
}

func TestView(t *testing.T) {
	m := fetchModel("avr-gcc", "esp32-gcc")
	updated, _ := m.Update(RowUpdateMsg{Key: "esp32-gcc", Fields: map[string]string{
		StatusColumn: "skipped", ColDetail: "already extracted",
	}})
	m = updated.(ProgressModel)

	view := m.View()
	for _, want := range []string{"Fetching toolchains", ColToolchain, StatusColumn, ProgressColumn, "avr-gcc", "pending", "skipped", "already extracted"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestViewDrawsProgressBar(t *testing.T) {
	m := fetchModel("avr-gcc")
	updated, _ := m.Update(RowUpdateMsg{Key: "avr-gcc", Fields: map[string]string{ProgressColumn: "50"}})
	m = updated.(ProgressModel)

	if !strings.Contains(m.View(), " 50%") {
		t.Error("expected a 50% bar")
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar("-", 10); got != "-         " {
		t.Errorf("non-numeric value should pass through, got %q", got)
	}
	if got := progressBar("", 4); got != "    " {
		t.Errorf("empty value should pad, got %q", got)
	}
	if got := progressBar("150", 3); got != "100%" {
		t.Errorf("narrow bar should show the clamped label, got %q", got)
	}
	full := progressBar("100", 12)
	if !strings.HasPrefix(full, "[") || !strings.HasSuffix(full, "100%") {
		t.Errorf("unexpected bar %q", full)
	}
}

func TestNonEmptyOrDash(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "-"},
		{"  ", "-"},
		{"avr-gcc", "avr-gcc"},
		{" avr-gcc ", "avr-gcc"},
	}
	for _, tt := range tests {
		if got := NonEmptyOrDash(tt.input); got != tt.want {
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
		{"arm-none-eabi-gcc-10", 10, "arm-non..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateWithEllipsis(tt.input, tt.max); got != tt.want {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestMarqueeText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		tick  int
		want  string
	}{
		{"short", 10, 0, "short"},
		{"hello world here", 5, 0, "hello"},
		{"hello world here", 5, 1, "ello "},
		{"hello world here", 5, 5, " worl"},
		{"abcdef", 4, 0, "abcd"},
		{"abcdef", 4, 6, "   a"},
	}
	for _, tt := range tests {
		if got := marqueeText(tt.text, tt.width, tt.tick); got != tt.want {
			t.Errorf("marqueeText(%q, %d, %d) = %q, want %q", tt.text, tt.width, tt.tick, got, tt.want)
		}
	}
}

func TestTickStopsAfterDone(t *testing.T) {
	m := fetchModel("avr-gcc")

	updated, cmd := m.Update(tickMsg{})
	m = updated.(ProgressModel)
	if m.tick != 1 || cmd == nil {
		t.Fatalf("expected tick=1 with a follow-up, got tick=%d", m.tick)
	}

	updated, _ = m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	if _, cmd := m.Update(tickMsg{}); cmd != nil {
		t.Error("expected no tick command after done")
	}
}

func TestProgressCountsTerminalRows(t *testing.T) {
	m := fetchModel("a", "b", "c", "d")
	for key, status := range map[string]string{"a": "done", "b": "downloading", "c": "error", "d": "skipped"} {
		updated, _ := m.Update(RowUpdateMsg{Key: key, Fields: map[string]string{StatusColumn: status}})
		m = updated.(ProgressModel)
	}

	finished, total := m.progressCounts()
	if total != 4 || finished != 3 {
		t.Errorf("expected 3/4 finished, got %d/%d", finished, total)
	}
	if !strings.Contains(m.View(), "3/4 toolchains finished") {
		t.Error("expected footer with counts while running")
	}

	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)
	if strings.Contains(m.View(), "toolchains finished") {
		t.Error("expected footer hidden once done")
	}
}

func TestCtrlC(t *testing.T) {
	m := fetchModel()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}
