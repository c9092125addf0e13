package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/northcutted/vuln-gate/pkg/analysis"
	"github.com/northcutted/vuln-gate/pkg/policy"
	"github.com/northcutted/vuln-gate/pkg/registry"
	"github.com/northcutted/vuln-gate/pkg/renderer"
	"github.com/northcutted/vuln-gate/pkg/source"
	"github.com/northcutted/vuln-gate/pkg/types"
)

const (
	modeAuto = "auto"
	modeLive = "live"
	modeFile = "file"

	formatText = "text"
	formatJSON = "json"
)

// assessment is the validated flag set for one run.
type assessment struct {
	mode     string
	strategy registry.Strategy
	policy   policy.Policy
}

func runAssess(ctx context.Context, target string) error {
	setupLogging(verbose)

	a, err := prepare(target)
	if err != nil {
		return err
	}

	layers, factory, err := resolveLayers(ctx, a.mode, target)
	if err != nil {
		return err
	}

	res, err := analysis.AnalyzeLayers(ctx, layers, factory, analysis.Options{
		Concurrency: concurrency,
		Strategy:    a.strategy,
	})
	if err != nil {
		return err
	}

	verdict := policy.Evaluate(res.Registry, a.policy)
	slog.Debug("policy evaluated", "verdict", verdict.String(), "ceiling", verdict.Ceiling, "highest", verdict.Highest)

	report, err := renderReport(res.Registry, a.policy, verdict)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := writeReport(outputFile, report); err != nil {
		return err
	}

	if !verdict.Pass {
		return &ExitError{Code: ExitPolicyFail, Err: fmt.Errorf("policy check failed: %s", verdict.Reason)}
	}
	return nil
}

// prepare validates flags and loads the policy. The whitelist is read before
// any layer is touched so a bad document fails fast.
func prepare(target string) (*assessment, error) {
	strategy, err := registry.ParseStrategy(dedup)
	if err != nil {
		return nil, err
	}
	fallback, ok := types.LookupSeverity(ceilingLabel)
	if !ok {
		return nil, fmt.Errorf("unknown severity %q for --ceiling", ceilingLabel)
	}
	if format != formatText && format != formatJSON {
		return nil, fmt.Errorf("unknown format %q (expected text or json)", format)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("--concurrency must be at least 1, got %d", concurrency)
	}

	m, err := resolveMode(mode, target)
	if err != nil {
		return nil, err
	}
	if m == modeLive && saveDir != "" {
		if err := source.PrepareSaveDir(saveDir); err != nil {
			return nil, err
		}
	}

	p, err := policy.Load(whitelistPath, fallback)
	if err != nil {
		return nil, err
	}
	return &assessment{mode: m, strategy: strategy, policy: p}, nil
}

// resolveMode picks file mode for directories when mode is auto.
func resolveMode(m, target string) (string, error) {
	switch m {
	case modeLive, modeFile:
		return m, nil
	case modeAuto, "":
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return modeFile, nil
		}
		return modeLive, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected auto, live or file)", m)
	}
}

// resolveLayers lists the layers to assess and the source that reads them.
func resolveLayers(ctx context.Context, m, target string) ([]string, source.Factory, error) {
	if m == modeFile {
		slog.Info("assessing saved layers", "directory", target)
		layers, err := source.DirectoryLayers(target)
		if err != nil {
			return nil, nil, err
		}
		return layers, source.NewFileFactory(strict), nil
	}

	slog.Info("assessing image", "image", target, "drapi", dockerURL, "clair", clairURL)
	layers, err := source.ImageLayers(ctx, dockerURL, target)
	if err != nil {
		return nil, nil, err
	}
	client := &http.Client{Timeout: timeout}
	return layers, source.NewClairFactory(clairURL, client, saveDir, strict), nil
}

func renderReport(reg *registry.Registry, p policy.Policy, verdict policy.Verdict) (string, error) {
	if format == formatJSON {
		return renderer.RenderJSON(reg, p, verdict)
	}

	var report string
	if verbose {
		var err error
		report, err = renderer.Render(reg, renderer.RenderOptions{Framed: true, Policy: &p})
		if err != nil {
			return "", err
		}
	}
	return report + verdict.String() + "\n", nil
}
