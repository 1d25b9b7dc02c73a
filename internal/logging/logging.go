package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the verbosity and wire format of the operational
// logger. It is distinct from the fixed-format verbose per-query trace
// lines, which are written directly to stdout rather than through this
// logger.
type Config struct {
	Level      string
	Structured bool
	Format     string
}

// Configure builds a slog.Logger from cfg and installs it as the
// process default. Operational/diagnostic messages (socket errors,
// fatal setup errors, timeout/interrupt warnings) go through the
// returned logger; verbose per-query trace lines do not.
func Configure(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)
	var handler slog.Handler
	out := io.Writer(os.Stderr)

	if cfg.Structured && strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(s string) slog.Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
