// Package logging installs the process wide slog logger for the tidings
// binaries: a zerolog console writer, or plain zerolog JSON, behind a zeroslog
// handler.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// New returns a slog logger writing to w at level.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	var zl zerolog.Logger
	if json {
		zl = zerolog.New(w).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
		zl = zerolog.New(output).With().Timestamp().Logger()
	}
	return slog.New(zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: level}))
}

// Setup makes New(w, level, json) the slog default and returns it.
func Setup(w io.Writer, level slog.Level, json bool) *slog.Logger {
	logger := New(w, level, json)
	slog.SetDefault(logger)
	return logger
}
