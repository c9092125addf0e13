package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// writeReport prints the report, or writes it to path when one is given.
func writeReport(path, report string) error {
	if path == "" {
		_, err := io.WriteString(stdout, report)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(report), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	slog.Info("wrote report", "path", path)
	return nil
}
