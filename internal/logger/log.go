// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps a slog.Logger so the service can pass a single concrete type around.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing text records to stderr.
func New(level slog.Level) *Logger {
	return NewLogger(level, os.Stderr)
}

// NewLogger returns a Logger writing text records of the given level or above to output.
func NewLogger(level slog.Level, output io.Writer) *Logger {
	return &Logger{slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level}))}
}

// Err returns an slog attribute for the given error.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
