package trace

import (
	"log/slog"
	"sync"

	"github.com/streamlens/streamlens/internal/config"
	"github.com/streamlens/streamlens/internal/logging"
)

var setupOnce sync.Once

// setupLogging configures the process-wide slog logger from the
// environment the first time a trace is opened. Embedding applications
// that configured slog themselves can pre-empt this by calling
// logging.Setup (or slog.SetDefault) before opening traces; the env
// default only applies when LOG_FILE or LOG_LEVEL is set.
func setupLogging(cfg *config.Config) {
	setupOnce.Do(func() {
		if cfg.LogFile == "" && cfg.LogLevel == "info" {
			return
		}
		err := logging.Setup(logging.Config{
			Level:      cfg.LogLevel,
			FilePath:   cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAgeDays: cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		})
		if err != nil {
			slog.Warn("log setup failed, keeping default logger", "error", err)
		}
	})
}
