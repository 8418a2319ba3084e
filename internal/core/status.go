package core

import (
	"fmt"
	"io"
	"log/slog"
)

// StatusWriter receives human-readable progress lines.
type StatusWriter interface {
	WriteStatus(line string)
}

// StatusWriterFunc adapts a function to StatusWriter.
type StatusWriterFunc func(line string)

// WriteStatus calls f(line).
func (f StatusWriterFunc) WriteStatus(line string) { f(line) }

// NewLineWriter writes each status as a line to w. Write errors are dropped.
func NewLineWriter(w io.Writer) StatusWriter {
	return StatusWriterFunc(func(line string) {
		_, _ = fmt.Fprintln(w, line)
	})
}

// NewLogStatusWriter emits statuses as info records.
func NewLogStatusWriter(logger *slog.Logger) StatusWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return StatusWriterFunc(func(line string) {
		logger.Info(line)
	})
}
