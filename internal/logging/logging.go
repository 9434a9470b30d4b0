// Package logging configures the process-wide slog logger, with optional
// file output rotated by lumberjack.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and, when FilePath is set, a rotated log
// file instead of stderr.
type Config struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty = stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup installs a text handler as the slog default. With a FilePath the
// handler writes through a lumberjack rotator; rotated files are retained
// per MaxBackups/MaxAgeDays.
func Setup(cfg Config) error {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
