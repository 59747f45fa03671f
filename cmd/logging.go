package cmd

import (
	"log/slog"
	"strings"
)

// parseLevel maps a config string to a slog level. Unknown values fall back
// to Info rather than failing startup.
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
