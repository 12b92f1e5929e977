package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger. format is "json" or "text". When dir is
// set every record is also appended as a JSON line to <dir>/<level>.log;
// the returned func closes those files.
func New(level, format, dir string) (*slog.Logger, func() error, error) {
	return newLogger(os.Stdout, level, format, dir)
}

func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	return slog.New(consoleHandler(w, level, format))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(w io.Writer, level, format, dir string) (*slog.Logger, func() error, error) {
	console := consoleHandler(w, level, format)
	if dir == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	files, err := openLevelFiles(dir, parseLevel(level))
	if err != nil {
		return nil, nil, err
	}
	return slog.New(fanout{console, files}), files.Close, nil
}

func consoleHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
