package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"openblock/internal/paths"
)

// New creates a logger that writes to a timestamped file inside the project's
// logs directory. Every line carries the run id so interleaved runs can be
// told apart. The returned closer should be closed when logging is no longer
// needed.
func New(p paths.ProjectPaths, level string) (hclog.Logger, io.Closer, error) {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(p.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return NewWriter(file, level), file, nil
}

// NewWriter builds the openblock logger over an arbitrary writer.
func NewWriter(out io.Writer, level string) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "openblock",
		Level:      lvl,
		Output:     out,
		JSONFormat: os.Getenv("OPENBLOCK_JSON_LOG") == "1",
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	return logger.With("run", RunID())
}

// RunID returns a time-ordered identifier for the current invocation.
func RunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OrNull returns logger, or a discarding logger when it is nil.
func OrNull(logger hclog.Logger) hclog.Logger {
	if logger == nil {
		return hclog.NewNullLogger()
	}
	return logger
}
