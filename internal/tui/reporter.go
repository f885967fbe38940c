package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"openblock/internal/toolchain"
)

// Column headers of the toolchain fetch table.
const (
	ColToolchain = "TOOLCHAIN"
	ColVersion   = "VERSION"
	ColDetail    = "DETAIL"
)

// FetchColumns is the layout used by toolchain fetch.
func FetchColumns() []Column {
	return []Column{
		{Header: ColToolchain, Width: 22},
		{Header: StatusColumn, Width: 11},
		{Header: ColVersion, Width: 10},
		{Header: ProgressColumn, Width: 24},
		{Header: ColDetail, Width: 36},
	}
}

// PendingRow returns the initial fields for a toolchain row.
func PendingRow(name string) []string {
	return []string{name, "pending", "", "", ""}
}

// EventFields maps a fetch event onto table cells.
func EventFields(ev toolchain.Event) map[string]string {
	fields := map[string]string{StatusColumn: string(ev.Stage)}
	if ev.Version != "" {
		fields[ColVersion] = ev.Version
	}

	switch ev.Stage {
	case toolchain.StageDownloading:
		fields[ProgressColumn] = strconv.Itoa(ev.Percent)
		fields[ColDetail] = TransferDetail(ev.Downloaded, ev.Total, ev.BytesPerSec)
	case toolchain.StageDone:
		fields[ProgressColumn] = "100"
		fields[ColDetail] = ev.Message
	case toolchain.StageSkipped, toolchain.StageError:
		fields[ProgressColumn] = "-"
		fields[ColDetail] = ev.Message
	default:
		fields[ColDetail] = ev.Message
	}
	return fields
}

// TransferDetail renders "1.2 MB / 3.4 MB @ 800 kB/s".
func TransferDetail(downloaded, total int64, bytesPerSec float64) string {
	if downloaded <= 0 && total <= 0 {
		return ""
	}
	text := humanize.Bytes(uint64(max(downloaded, 0)))
	if total > 0 {
		text += " / " + humanize.Bytes(uint64(total))
	}
	if bytesPerSec > 0 {
		text += fmt.Sprintf(" @ %s/s", humanize.Bytes(uint64(bytesPerSec)))
	}
	return text
}

// ForwardEvents relays fetch events into the program until events is closed.
func ForwardEvents(events <-chan toolchain.Event, send func(tea.Msg)) {
	for ev := range events {
		send(RowUpdateMsg{Key: ev.Name, Fields: EventFields(ev)})
	}
}
