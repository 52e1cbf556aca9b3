// Package logging sets up the structured logging sink the rest of the
// guest-init core calls into (spec.md §1 scopes "log formatting" itself
// out as an external concern, but the call convention — a slog.Logger —
// is ambient and kept). Grounded on the teacher's go.mod, which carries
// github.com/lmittmann/tint and github.com/mattn/go-isatty as indirect
// dependencies with no direct consumer in internal/harness (it uses plain
// log.Printf there); SPEC_FULL gives both libraries a direct home as the
// init's console logging backend.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// New builds the process-wide logger. When w is a TTY (the console-relay
// path of the init boot sequence, spec.md §4.9 step 5), output is
// tint-colored text; otherwise it is JSON suitable for the kmsg/virtio
// console redirect path.
func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
