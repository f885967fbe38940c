package tui

// RowUpdateMsg replaces column values on the row keyed by a toolchain name.
// Columns absent from Fields keep their current value.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// WorkDoneMsg is sent once the fetch batch has returned.
type WorkDoneMsg struct{}

// ErrorMsg aborts the table with a batch-level failure.
type ErrorMsg struct {
	Err error
}
