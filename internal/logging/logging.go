// Package logging builds the process slog logger.
//
// Output is text on a TTY and JSON otherwise unless LOG_FORMAT says so. LOG_LEVEL
// selects debug, info, warn or error. Source locations are shortened to paths
// relative to the working directory.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options controls logger construction.
type Options struct {
	Format string // "text", "json" or "" for TTY detection
	Level  string
	Output io.Writer // defaults to stdout
}

// OptionsFromEnv reads LOG_FORMAT and LOG_LEVEL.
func OptionsFromEnv() Options {
	return Options{
		Format: strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		Level:  os.Getenv("LOG_LEVEL"),
	}
}

// New creates a configured logger.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	useText := opts.Format == "text"
	if opts.Format == "" {
		if f, ok := out.(*os.File); ok {
			useText = isatty(f)
		}
	}

	wd, _ := os.Getwd()
	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.SourceKey {
				return a
			}
			if src, ok := a.Value.Any().(*slog.Source); ok {
				src.File = shortenPath(wd, src.File)
			}
			return a
		},
	}

	if useText {
		return slog.New(slog.NewTextHandler(out, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(out, handlerOpts))
}

// SetDefault creates a logger from the environment and installs it as the slog default.
func SetDefault() *slog.Logger {
	logger := New(OptionsFromEnv())
	slog.SetDefault(logger)
	return logger
}

// ParseLevel converts a level name to slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
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

func shortenPath(wd, file string) string {
	if wd != "" {
		if rel, err := filepath.Rel(wd, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(file)
}

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
