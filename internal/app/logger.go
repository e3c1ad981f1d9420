package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a configured slog.Logger based on configuration. Unknown
// levels fall back to info.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true, Level: parseLevel(cfg)}
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler).With(slog.String("service", "toolcrib"))
	if cfg != nil && cfg.AppEnv != "" {
		logger = logger.With(slog.String("env", cfg.AppEnv))
	}
	return logger
}

func parseLevel(cfg *Config) slog.Level {
	var level slog.Level
	if cfg == nil {
		return slog.LevelInfo
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
