// Package internal holds logging helpers shared by the daemon and its
// packages.
package internal

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

const (
	// slog does not define a trace level, so we define one here.
	LevelTrace = slog.LevelDebug - 4
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError

	// Disable is a level above everything, used for no-op loggers in tests.
	Disable = slog.LevelInfo + 1000
)

// NewLogger returns a text logger writing leveled, timestamped lines with
// source locations to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format("2006-01-02 15:04:05.000 UTC"))
				}
			case slog.SourceKey:
				if source, ok := a.Value.Any().(*slog.Source); ok {
					file := filepath.Base(source.File)
					if dir := filepath.Base(filepath.Dir(source.File)); dir != "." {
						file = dir + "/" + file
					}
					a.Value = slog.StringValue(fmt.Sprintf("%s:%d", file, source.Line))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(FormatLogLevel(level))
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLogLevel parses a string representation of a log level. Unrecognized
// input returns LevelInfo alongside the error.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "disable", "none", "off":
		return Disable, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}

// FormatLogLevel renders custom levels that slog would otherwise print as
// offsets, i.e. "DEBUG-4" for trace.
func FormatLogLevel(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return "TRACE"
	case level < LevelInfo:
		return "DEBUG"
	case level < LevelWarn:
		return "INFO"
	case level < LevelError:
		return "WARN"
	default:
		return "ERROR"
	}
}

// NoOpLogger returns a logger that discards everything.
func NoOpLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: Disable}))
}
