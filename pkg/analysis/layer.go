package analysis

import (
	"fmt"

	"github.com/northcutted/vuln-gate/pkg/registry"
)

// LoadState tracks a layer through one assessment.
type LoadState int

const (
	Unloaded LoadState = iota
	Loaded
	Failed
)

func (s LoadState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Layer is one image layer as seen by the driver. Its records are handed to
// the registry and only their count is kept here.
type Layer struct {
	SourceID string
	State    LoadState
	Records  int
}

// Result is the outcome of a fully successful assessment.
type Result struct {
	Registry *registry.Registry
	Layers   []Layer
}

// AssessmentError aborts a run. It identifies the first layer that failed.
type AssessmentError struct {
	SourceID string
	Err      error
}

func (e *AssessmentError) Error() string {
	return fmt.Sprintf("assessment aborted: %v", e.Err)
}

func (e *AssessmentError) Unwrap() error { return e.Err }
