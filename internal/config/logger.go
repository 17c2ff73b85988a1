package config

import (
	"log/slog"
	"os"
)

// Logger returns the process logger: JSON in production, text elsewhere.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if !c.IsProduction() {
		opts.Level = slog.LevelDebug
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
