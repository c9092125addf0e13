package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/northcutted/vuln-gate/pkg/types"
)

// DefaultClairURL is the Clair API endpoint used when none is given.
const DefaultClairURL = "http://clair:6060"

// DefaultRequestTimeout bounds a single Clair request.
const DefaultRequestTimeout = 60 * time.Second

// clairLayer is the subset of Clair's v1 layer response that carries findings.
// Vulnerabilities stay raw so the full object can be reported unchanged.
type clairLayer struct {
	Layer *struct {
		Features []struct {
			Vulnerabilities []json.RawMessage `json:"Vulnerabilities"`
		} `json:"Features"`
	} `json:"Layer"`
}

type clairVulnerability struct {
	Name     string `json:"Name"`
	Severity string `json:"Severity"`
}

// DecodeLayer extracts the vulnerability records from a Clair layer payload.
// Entries without a Name are skipped and logged, or fail the whole layer when
// strict is set. A missing Severity is kept as Unknown.
func DecodeLayer(sourceID string, data []byte, strict bool) ([]types.Vulnerability, error) {
	var doc clairLayer
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clair layer: %w", err)
	}
	if doc.Layer == nil {
		return nil, nil
	}

	var records []types.Vulnerability
	index := 0
	for _, feature := range doc.Layer.Features {
		for _, raw := range feature.Vulnerabilities {
			index++
			var v clairVulnerability
			if err := json.Unmarshal(raw, &v); err != nil {
				merr := &MalformedRecordError{SourceID: sourceID, Index: index, Reason: err.Error()}
				if strict {
					return nil, merr
				}
				slog.Warn("skipping vulnerability", "error", merr)
				continue
			}
			if strings.TrimSpace(v.Name) == "" {
				merr := &MalformedRecordError{SourceID: sourceID, Index: index, Reason: "missing Name"}
				if strict {
					return nil, merr
				}
				slog.Warn("skipping vulnerability", "error", merr)
				continue
			}
			records = append(records, types.NewVulnerability(v.Name, v.Severity, sourceID, raw))
		}
	}
	return records, nil
}

// ClairSource fetches one layer's vulnerabilities from the Clair v1 API.
type ClairSource struct {
	BaseURL string
	LayerID string
	// Index is the layer's position in the image history. Saved files are
	// prefixed with it so DirectoryLayers replays them in the same order.
	Index   int
	Client  *http.Client
	// SaveDir, when set, receives the raw response as <Index>-<LayerID>.json
	// so the layer can be re-assessed later by a FileSource.
	SaveDir string
	Strict  bool
}

// NewClairFactory returns a Factory producing ClairSources that share client.
func NewClairFactory(baseURL string, client *http.Client, saveDir string, strict bool) Factory {
	if client == nil {
		client = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return func(index int, layerID string) LayerSource {
		return &ClairSource{
			BaseURL: baseURL,
			LayerID: layerID,
			Index:   index,
			Client:  client,
			SaveDir: saveDir,
			Strict:  strict,
		}
	}
}

// SourceID returns the layer identifier.
func (s *ClairSource) SourceID() string { return s.LayerID }

// FetchRecords runs GET <BaseURL>/v1/layers/<LayerID>?vulnerabilities.
func (s *ClairSource) FetchRecords(ctx context.Context) ([]types.Vulnerability, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, &LayerFetchError{SourceID: s.LayerID, Err: err}
	}

	records, err := DecodeLayer(s.LayerID, body, s.Strict)
	if err != nil {
		return nil, &LayerFetchError{SourceID: s.LayerID, Err: err}
	}

	if s.SaveDir != "" {
		if err := saveLayer(s.SaveDir, SavedLayerName(s.Index, s.LayerID), body); err != nil {
			return nil, &LayerFetchError{SourceID: s.LayerID, Err: err}
		}
	}
	return records, nil
}

func (s *ClairSource) fetch(ctx context.Context) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/layers/%s?vulnerabilities",
		strings.TrimRight(s.BaseURL, "/"), url.PathEscape(s.LayerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	slog.Debug("fetching layer vulnerabilities", "url", endpoint)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clair returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// SavedLayerName is the file name a layer is saved under. The zero-padded
// index keeps name order equal to history order.
func SavedLayerName(index int, layerID string) string {
	return fmt.Sprintf("%04d-%s.json", index, filepath.Base(layerID))
}

// PrepareSaveDir creates dir if needed and refuses one that already holds
// layer files, since a later replay would mix them with this run's layers.
func PrepareSaveDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	layers, err := DirectoryLayers(dir)
	if err != nil {
		return err
	}
	if len(layers) > 0 {
		return fmt.Errorf("save directory '%s' is not empty (%d files)", dir, len(layers))
	}
	return nil
}

// saveLayer writes an indented copy of a layer payload into dir.
func saveLayer(dir, fileName string, body []byte) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create save directory: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		buf.Reset()
		buf.Write(body)
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to save layer to %s: %w", path, err)
	}
	slog.Debug("saved layer", "path", path)
	return nil
}
