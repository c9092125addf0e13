// Package source provides the layer-level vulnerability providers: a live
// Clair query per image layer, and previously saved Clair payloads on disk.
package source

import (
	"context"
	"fmt"

	"github.com/northcutted/vuln-gate/pkg/types"
)

// LayerSource produces the vulnerability records reported for one image layer.
// Repeated successful calls for the same layer return the same records.
type LayerSource interface {
	SourceID() string
	FetchRecords(ctx context.Context) ([]types.Vulnerability, error)
}

// Factory builds the LayerSource for a layer identifier. index is the layer's
// position in the assessment order.
type Factory func(index int, layerID string) LayerSource

// LayerFetchError reports a failure to obtain one layer's records.
type LayerFetchError struct {
	SourceID string
	Err      error
}

func (e *LayerFetchError) Error() string {
	return fmt.Sprintf("couldn't get vulnerabilities for layer '%s': %v", e.SourceID, e.Err)
}

func (e *LayerFetchError) Unwrap() error { return e.Err }

// MalformedRecordError describes a vulnerability entry without an identifier.
// These are skipped with a warning unless strict decoding is requested.
type MalformedRecordError struct {
	SourceID string
	Index    int
	Reason   string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed vulnerability #%d in layer '%s': %s", e.Index, e.SourceID, e.Reason)
}
