// Package tachylog provides the engine's structured logging: a thin wrapper
// over log/slog recording load/persist/inject events. The teacher's own
// tree carries no structured-logging dependency (its demo binaries use bare
// "log"), so this is the one ambient concern kept on the standard library —
// see DESIGN.md.
package tachylog

import (
	"io"
	"log/slog"
)

// New returns a logger writing structured text lines to w, tagged with the
// font name.
func New(w io.Writer, fontName string) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(slog.String("font", fontName))
}

// Discard returns a logger that drops everything, for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
