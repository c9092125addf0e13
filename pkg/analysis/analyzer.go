// Package analysis drives the per-layer fetches and aggregates their records
// into a registry.
package analysis

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/northcutted/vuln-gate/pkg/registry"
	"github.com/northcutted/vuln-gate/pkg/source"
	"github.com/northcutted/vuln-gate/pkg/types"
)

// Options controls an assessment.
type Options struct {
	// Concurrency is the number of layers fetched at once. Values below 1 mean 1.
	Concurrency int
	Strategy    registry.Strategy
}

// AnalyzeLayers fetches every layer and registers the records in layer order,
// so the report is the same regardless of Concurrency. The first failing
// layer cancels the fetches still in flight and nothing is returned but the
// error.
func AnalyzeLayers(ctx context.Context, layerIDs []string, factory source.Factory, opts Options) (*Result, error) {
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	layers := make([]Layer, len(layerIDs))
	fetched := make([][]types.Vulnerability, len(layerIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, id := range layerIDs {
		layers[i] = Layer{SourceID: id, State: Unloaded}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src := factory(i, id)
			records, err := src.FetchRecords(gctx)
			if err != nil {
				layers[i].State = Failed
				return &AssessmentError{SourceID: src.SourceID(), Err: err}
			}
			layers[i].State = Loaded
			layers[i].Records = len(records)
			fetched[i] = records
			slog.Debug("layer loaded", "layer", src.SourceID(), "vulnerabilities", len(records))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var aerr *AssessmentError
		if !errors.As(err, &aerr) {
			// Cancelled from outside before any layer failed.
			return nil, &AssessmentError{Err: err}
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &AssessmentError{Err: err}
	}

	reg := registry.New(opts.Strategy)
	for _, records := range fetched {
		for _, v := range records {
			reg.Register(v)
		}
	}

	slog.Info("layers analyzed", "layers", len(layers), "vulnerabilities", reg.Len())
	return &Result{Registry: reg, Layers: layers}, nil
}
