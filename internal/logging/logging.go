// Package logging configures structured logging for codeseek.
//
// Logs are emitted via log/slog. When writing to a terminal, a human
// readable text handler is used; otherwise JSON lines are written so
// log files stay machine parseable. File output rotates by size.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string

	// FilePath is the log file location. Empty disables file output.
	FilePath string

	// MaxSizeMB is the rotation threshold for the log file.
	MaxSizeMB int

	// MaxFiles is the number of rotated files to keep.
	MaxFiles int

	// WriteToStderr mirrors log output to stderr.
	WriteToStderr bool
}

// DefaultConfig returns sensible logging defaults.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		MaxSizeMB:     10,
		MaxFiles:      3,
		WriteToStderr: true,
	}
}

// Setup initializes the global slog logger from cfg. It returns a
// cleanup function that flushes and closes the log file, and an error
// if the log file could not be opened.
func Setup(cfg Config) (func(), error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	var rotating *RotatingWriter

	if cfg.FilePath != "" {
		rotating, err = NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize log file: %w", err)
		}
		writers = append(writers, rotating)
	}

	if cfg.WriteToStderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer
	if len(writers) == 1 {
		out = writers[0]
	} else {
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.FilePath == "" && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))

	cleanup := func() {
		if rotating != nil {
			_ = rotating.Sync()
			_ = rotating.Close()
		}
	}
	return cleanup, nil
}

// parseLevel converts a level string to a slog.Level.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
