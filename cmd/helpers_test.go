package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// captureOutput runs f with stdout, and cobra's own output such as the
// --version template, redirected into a buffer.
func captureOutput(f func()) string {
	old := stdout
	var buf bytes.Buffer
	stdout = &buf
	rootCmd.SetOut(&buf)
	defer func() {
		stdout = old
		rootCmd.SetOut(nil)
	}()

	f()
	return buf.String()
}

// resetFlags restores every flag to its default and returns a func that does
// the same plus restores the writers, for use as `defer resetFlags()()`.
func resetFlags() func() {
	reset := func() {
		rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
		stdout = os.Stdout
		stderr = io.Discard
		rootCmd.SetArgs(nil)
	}
	reset()
	return reset
}

// writeLayers writes one file per layer into a fresh directory.
func writeLayers(t *testing.T, layers map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range layers {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write layer %s: %v", name, err)
		}
	}
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}
