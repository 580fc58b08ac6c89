// Package logging wraps charmbracelet/log with the one thing every
// adapter log line needs that the bare logger doesn't give for free: a
// session id tag, so interleaved output from concurrent sessions (one
// process can in principle serve more than one client lifetime) stays
// attributable. Grounded on doismellburning-samoyed's use of the same
// package for a long-running daemon.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Level mirrors the five levels spec.md §6's --log-level flag exposes.
type Level = log.Level

const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
	LevelFatal = log.FatalLevel
)

// ParseLevel maps a --log-level flag value to a Level, defaulting to info
// for anything unrecognized rather than failing startup over a typo.
// Accepts both the CLI's DEBUG|INFO|WARNING|ERROR|CRITICAL vocabulary
// (spec.md §6, case-insensitive) and the lowercase short forms used
// internally (config files, tests).
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal", "critical":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// New builds a logger writing to w, tagged with sessionID so every line it
// emits carries that context without every call site repeating it.
func New(w io.Writer, sessionID string, level Level) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	logger.SetLevel(level)
	if sessionID != "" {
		return logger.With("session", sessionID)
	}
	return logger
}

// Discard is a logger that drops everything, used by tests that don't want
// log noise but still need a non-nil *log.Logger to hand to constructors.
func Discard() *log.Logger {
	return New(io.Discard, "", LevelFatal+1)
}
