// Package jlog provides structured logging for the journal, built on
// log/slog. Grounded on logging.Init/logging.GetLogger's level-enum,
// format-switch, package-default-logger shape, trimmed to the events a
// journal actually emits (a completed recovery, and copy-back and flush
// worker errors).
package jlog

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Level mirrors slog's levels without exposing the slog type at call sites.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects the handler used by Init.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var defaultLogger *slog.Logger

func init() {
	Init(LevelInfo, FormatText)
}

// Init (re)configures the package-default logger.
func Init(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	defaultLogger = slog.New(handler)
}

// Logger returns the package-default logger.
func Logger() *slog.Logger { return defaultLogger }

// ForSession returns a logger tagged with a session correlation id, used to
// separate log lines from concurrent Manager instances in the same process
// (e.g. in tests or a multi-journal host).
func ForSession(id uuid.UUID) *slog.Logger {
	return defaultLogger.With("session_id", id.String())
}

// Recovered logs a completed recovery pass.
func Recovered(log *slog.Logger, firstGeneration, currentGeneration int64, pageIndexSize int, dirty bool) {
	log.Info("journal recovered",
		"first_generation", firstGeneration,
		"current_generation", currentGeneration,
		"page_index_size", pageIndexSize,
		"dirty_tail", dirty,
	)
}

// WorkerError logs a background worker failure. Workers keep running; this
// is observability, not a fatal condition.
func WorkerError(log *slog.Logger, worker string, err error) {
	log.Error("worker error", "worker", worker, "error", err.Error())
}
