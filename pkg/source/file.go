package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/northcutted/vuln-gate/pkg/types"
)

// FileSource reads a saved Clair layer payload from disk.
type FileSource struct {
	Path   string
	Strict bool
}

// NewFileFactory returns a Factory that treats layer identifiers as file paths.
func NewFileFactory(strict bool) Factory {
	return func(_ int, path string) LayerSource {
		return &FileSource{Path: path, Strict: strict}
	}
}

// SourceID returns the file path.
func (s *FileSource) SourceID() string { return s.Path }

// FetchRecords reads and decodes the file.
func (s *FileSource) FetchRecords(ctx context.Context) ([]types.Vulnerability, error) {
	if err := ctx.Err(); err != nil {
		return nil, &LayerFetchError{SourceID: s.Path, Err: err}
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &LayerFetchError{SourceID: s.Path, Err: err}
	}
	records, err := DecodeLayer(s.Path, data, s.Strict)
	if err != nil {
		return nil, &LayerFetchError{SourceID: s.Path, Err: err}
	}
	return records, nil
}

// DirectoryLayers lists the layer files in dir, sorted by name so repeated
// runs process layers in the same order. Sub-directories and dot files are
// ignored.
func DirectoryLayers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("could not read layers from '%s': %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
