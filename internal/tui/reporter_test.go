package tui

import (
	"bytes"
	"os"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"openblock/internal/toolchain"
)

func TestEventFields(t *testing.T) {
	fields := EventFields(toolchain.Event{
		Name:        "avr-gcc",
		Stage:       toolchain.StageDownloading,
		Version:     "7.3.0",
		Percent:     42,
		Downloaded:  2_000_000,
		Total:       5_000_000,
		BytesPerSec: 1_000_000,
	})
	if fields[StatusColumn] != "downloading" || fields[ProgressColumn] != "42" || fields[ColVersion] != "7.3.0" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields[ColDetail] != "2.0 MB / 5.0 MB @ 1.0 MB/s" {
		t.Fatalf("unexpected detail %q", fields[ColDetail])
	}

	fields = EventFields(toolchain.Event{Name: "x", Stage: toolchain.StageError, Message: "checksum mismatch"})
	if fields[ProgressColumn] != "-" || fields[ColDetail] != "checksum mismatch" {
		t.Fatalf("unexpected error fields %v", fields)
	}
	if _, ok := fields[ColVersion]; ok {
		t.Fatal("empty version must not clear the column")
	}
}

func TestTransferDetail(t *testing.T) {
	if got := TransferDetail(0, 0, 0); got != "" {
		t.Errorf("expected empty detail, got %q", got)
	}
	if got := TransferDetail(1500, 0, 0); got != "1.5 kB" {
		t.Errorf("unknown total: got %q", got)
	}
}

func TestForwardEvents(t *testing.T) {
	events := make(chan toolchain.Event, 3)
	events <- toolchain.Event{Name: "avr-gcc", Stage: toolchain.StageFetching}
	events <- toolchain.Event{Name: "avr-gcc", Stage: toolchain.StageDone, Version: "7.3.0"}
	close(events)

	var msgs []tea.Msg
	ForwardEvents(events, func(msg tea.Msg) { msgs = append(msgs, msg) })
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	last, ok := msgs[1].(RowUpdateMsg)
	if !ok || last.Key != "avr-gcc" || last.Fields[StatusColumn] != "done" {
		t.Fatalf("unexpected message %#v", msgs[1])
	}
}

func TestDetectMode(t *testing.T) {
	var buf bytes.Buffer
	if got := DetectMode(&buf, false, true); got != ModeJSON {
		t.Errorf("json flag: got %v", got)
	}
	if got := DetectMode(&buf, true, false); got != ModePlain {
		t.Errorf("no-progress flag: got %v", got)
	}
	if got := DetectMode(&buf, false, false); got != ModePlain {
		t.Errorf("non-file writer: got %v", got)
	}

	orig := isTerminal
	isTerminal = func(*os.File) bool { return true }
	t.Cleanup(func() { isTerminal = orig })
	t.Setenv("TERM", "xterm-256color")
	if got := DetectMode(os.Stdout, false, false); got != ModeTUI {
		t.Errorf("terminal: got %v", got)
	}
	t.Setenv("TERM", "dumb")
	if got := DetectMode(os.Stdout, false, false); got != ModePlain {
		t.Errorf("dumb terminal: got %v", got)
	}
}
