package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/northcutted/vuln-gate/pkg/types"
)

// WhitelistEntry exempts one vulnerability from the threshold check.
type WhitelistEntry struct {
	CVEID     string `json:"cveId" yaml:"cveId"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Whitelist is the policy override document. Both spellings of the ceiling key
// are accepted; the historical misspelling is what existing whitelists use.
type Whitelist struct {
	IgnoreSevertiesAtOrBelow  string           `json:"ignoreSevertiesAtOrBelow,omitempty" yaml:"ignoreSevertiesAtOrBelow,omitempty"`
	IgnoreSeveritiesAtOrBelow string           `json:"ignoreSeveritiesAtOrBelow,omitempty" yaml:"ignoreSeveritiesAtOrBelow,omitempty"`
	Vulnerabilities           []WhitelistEntry `json:"vulnerabilities,omitempty" yaml:"vulnerabilities,omitempty"`
}

// PolicyLoadError reports an unreadable or invalid whitelist.
type PolicyLoadError struct {
	Path string
	Err  error
}

func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("could not read whitelist from '%s': %v", e.Path, e.Err)
}

func (e *PolicyLoadError) Unwrap() error { return e.Err }

// CeilingLabel returns the configured ceiling label, or "" if none is set.
// The corrected spelling wins when both keys are present.
func (w *Whitelist) CeilingLabel() string {
	if w.IgnoreSeveritiesAtOrBelow != "" {
		return w.IgnoreSeveritiesAtOrBelow
	}
	return w.IgnoreSevertiesAtOrBelow
}

// Ceiling returns the severity ceiling set by the whitelist, or fallback when
// the document does not set one.
func (w *Whitelist) Ceiling(fallback types.Severity) (types.Severity, error) {
	label := w.CeilingLabel()
	if label == "" {
		return fallback, nil
	}
	sev, ok := types.LookupSeverity(label)
	if !ok {
		return fallback, fmt.Errorf("unknown severity %q", label)
	}
	return sev, nil
}

// ParseWhitelist decodes a whitelist document. JSON documents are decoded
// with encoding/json, anything else as YAML.
func ParseWhitelist(data []byte, ext string) (*Whitelist, error) {
	var wl Whitelist
	trimmed := bytes.TrimSpace(data)
	if strings.EqualFold(ext, ".json") || bytes.HasPrefix(trimmed, []byte("{")) {
		if err := json.Unmarshal(trimmed, &wl); err != nil {
			return nil, fmt.Errorf("failed to unmarshal whitelist: %w", err)
		}
	} else if len(trimmed) > 0 {
		// A document holding only comments decodes to io.EOF.
		if err := yaml.NewDecoder(bytes.NewReader(trimmed)).Decode(&wl); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to unmarshal whitelist: %w", err)
		}
	}

	for i, entry := range wl.Vulnerabilities {
		if strings.TrimSpace(entry.CVEID) == "" {
			return nil, fmt.Errorf("whitelist entry %d has no cveId", i)
		}
	}
	return &wl, nil
}

// LoadWhitelist reads and decodes a whitelist file.
func LoadWhitelist(path string) (*Whitelist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &PolicyLoadError{Path: path, Err: err}
	}
	wl, err := ParseWhitelist(data, filepath.Ext(path))
	if err != nil {
		return nil, &PolicyLoadError{Path: path, Err: err}
	}
	return wl, nil
}
