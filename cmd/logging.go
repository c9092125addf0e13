package cmd

import (
	"log/slog"
)

// setupLogging installs the default slog logger on stderr. Debug output is
// only shown with --verbose.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
}
