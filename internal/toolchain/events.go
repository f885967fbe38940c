package toolchain

import "context"

// Stage is the user-visible state of one toolchain fetch.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageDownloading Stage = "downloading"
	StageVerifying   Stage = "verifying"
	StageExtracting  Stage = "extracting"
	StageDone        Stage = "done"
	StageSkipped     Stage = "skipped"
	StageError       Stage = "error"
)

// Terminal reports whether no further events follow for the toolchain.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageSkipped || s == StageError
}

// Event is one progress notification. Download counters are set only on
// StageDownloading events.
type Event struct {
	Name        string
	Stage       Stage
	Version     string
	Message     string
	Percent     int
	BytesPerSec float64
	Downloaded  int64
	Total       int64
}

func (f *Fetcher) emit(ctx context.Context, ev Event) {
	if f.Events == nil {
		return
	}
	select {
	case f.Events <- ev:
	case <-ctx.Done():
	}
}
