// Package logging configures the host's slog output: JSON records to a log
// file, optionally teed to stderr, with helpers for component loggers and
// goroutine panic recovery.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/tysttext/host/internal/paths"
)

// ComponentKey is the attribute naming the subsystem that emitted a record.
const ComponentKey = "component"

// DefaultLogPath returns the default log file path (~/.tysttext/host.log).
func DefaultLogPath() string {
	return paths.LogPath()
}

// ParseLevel converts "debug", "info", "warn" (or "warning") and "error",
// case-insensitively, to a slog.Level. Anything else is info.
func ParseLevel(level string) slog.Level {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		s = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Setup points the default logger at path (DefaultLogPath when empty).
// The returned cleanup closes the file.
func Setup(path string, level slog.Level) (cleanup func(), err error) {
	return SetupMulti(path, nil, level)
}

// SetupMulti is Setup with records also written to extra, which headless
// runs set to stderr. A nil extra logs to the file only.
func SetupMulti(path string, extra io.Writer, level slog.Level) (cleanup func(), err error) {
	if path == "" {
		path = DefaultLogPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}

	var w io.Writer = f
	if extra != nil {
		w = io.MultiWriter(f, extra)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))

	return func() { _ = f.Close() }, nil
}

// SetupTest sends debug-level text records to w.
func SetupTest(w io.Writer) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With(ComponentKey, name)
}

// LogPanic recovers a panic, logs it with its stack and calls onRecover
// with the recovered value. Defer it directly at the top of a goroutine:
//
//	defer logging.LogPanic("backend-drain", nil)
func LogPanic(name string, onRecover func(any)) {
	r := recover()
	if r == nil {
		return
	}
	slog.Error("panic recovered", "goroutine", name, "panic", r, "stack", string(debug.Stack()))
	if onRecover != nil {
		onRecover(r)
	}
}
