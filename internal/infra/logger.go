package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation policy for the on-disk log stream.
const (
	logFileName   = "cambio.log"
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// NewLogger builds the process logger: JSON records to stdout and to a
// size-rotated file under the configured directory.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}

	dir := cfg.Logging.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		// No writable log dir; stderr-only beats not starting.
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}

	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, rotated), opts))
}

func parseLogLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
