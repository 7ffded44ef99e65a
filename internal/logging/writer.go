package logging

import (
	"log/slog"
	"strings"
)

// Writer is an io.Writer implementation that forwards command output to slog.
type Writer struct {
	logger *slog.Logger
}

// NewWriter constructs a Writer bound to the provided logger.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write logs the given bytes line by line at info level.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger != nil {
		for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
			if line != "" {
				w.logger.Info("tool output", "line", line)
			}
		}
	}
	return len(p), nil
}
