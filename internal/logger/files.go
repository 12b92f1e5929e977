package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

var fileLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// levelFiles routes each record to the JSON file of its level.
type levelFiles struct {
	level    slog.Level
	files    []*os.File
	handlers map[slog.Level]slog.Handler
}

func openLevelFiles(dir string, level slog.Level) (*levelFiles, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	h := &levelFiles{level: level, handlers: make(map[slog.Level]slog.Handler, len(fileLevels))}
	opts := &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: fileAttr}
	for _, l := range fileLevels {
		path := filepath.Join(dir, fileName(l))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		h.files = append(h.files, f)
		h.handlers[l] = slog.NewJSONHandler(f, opts)
	}
	return h, nil
}

func (h *levelFiles) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *levelFiles) Handle(ctx context.Context, r slog.Record) error {
	return h.handlers[bucket(r.Level)].Handle(ctx, r)
}

func (h *levelFiles) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h *levelFiles) WithGroup(name string) slog.Handler {
	return h.derive(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

func (h *levelFiles) derive(fn func(slog.Handler) slog.Handler) *levelFiles {
	out := &levelFiles{level: h.level, files: h.files, handlers: make(map[slog.Level]slog.Handler, len(h.handlers))}
	for l, inner := range h.handlers {
		out.handlers[l] = fn(inner)
	}
	return out
}

func (h *levelFiles) Close() error {
	var errs []error
	for _, f := range h.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

func bucket(l slog.Level) slog.Level {
	switch {
	case l >= slog.LevelError:
		return slog.LevelError
	case l >= slog.LevelWarn:
		return slog.LevelWarn
	case l >= slog.LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func fileName(l slog.Level) string {
	switch l {
	case slog.LevelError:
		return "error.log"
	case slog.LevelWarn:
		return "warn.log"
	case slog.LevelInfo:
		return "info.log"
	default:
		return "debug.log"
	}
}

// fileAttr names the top-level keys the way the log files always have.
func fileAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// fanout sends every record to each handler that wants it.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
