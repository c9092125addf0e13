// Test file for the root command in both modes.
//
// Globals mutated: all flag variables, stdout, stderr.
// All tests use defer resetFlags()() for cleanup.
package cmd

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/northcutted/vuln-gate/pkg/analysis"
	"github.com/northcutted/vuln-gate/pkg/policy"
	"github.com/northcutted/vuln-gate/pkg/source"
)

const (
	layerA = `{"Layer": {"Features": [{"Name": "openssl", "Vulnerabilities": [
		{"Name": "CVE-1", "Severity": "High"}
	]}]}}`
	layerB = `{"Layer": {"Features": [{"Name": "bash", "Vulnerabilities": [
		{"Name": "CVE-1", "Severity": "Critical"},
		{"Name": "CVE-2", "Severity": "Low"}
	]}]}}`
)

func scenarioLayers(t *testing.T) string {
	return writeLayers(t, map[string]string{"a.json": layerA, "b.json": layerB})
}

func TestFileMode_FailsAboveDefaultCeiling(t *testing.T) {
	defer resetFlags()()

	rootCmd.SetArgs([]string{scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected policy failure exit, got %v", err)
	}
	if !strings.HasPrefix(output, "FAIL (") {
		t.Errorf("expected FAIL verdict, got %q", output)
	}
	if strings.Contains(output, "CVE-1") {
		t.Errorf("report must only be printed with --verbose, got %q", output)
	}
}

func TestFileMode_Verbose(t *testing.T) {
	defer resetFlags()()

	rootCmd.SetArgs([]string{"-v", "--ceiling", "High", scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	sep := strings.Repeat("-", 50)
	if !strings.HasPrefix(output, sep+"\nLow - 1\nHigh - 1\n"+sep+"\nCVE-1\n") {
		t.Errorf("unexpected report start:\n%s", output)
	}
	if !strings.Contains(output, `"Severity": "High"`) {
		t.Errorf("expected first-seen CVE-1 payload, got:\n%s", output)
	}
	if strings.Contains(output, `"Severity": "Critical"`) {
		t.Errorf("duplicate CVE-1 from layer b must be dropped, got:\n%s", output)
	}
	if !strings.HasSuffix(output, sep+"\nPASS\n") {
		t.Errorf("expected framed report followed by PASS, got:\n%s", output)
	}
}

func TestFileMode_WhitelistCeiling(t *testing.T) {
	defer resetFlags()()

	wl := writeFile(t, "whitelist.json", `{"ignoreSevertiesAtOrBelow": "High"}`)
	rootCmd.SetArgs([]string{"--whitelist", wl, scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("expected whitelist ceiling to be honored, got %v", err)
	}
	if output != "PASS\n" {
		t.Errorf("expected PASS, got %q", output)
	}
}

func TestFileMode_WhitelistedID(t *testing.T) {
	defer resetFlags()()

	wl := writeFile(t, "whitelist.yaml", "vulnerabilities:\n  - cveId: CVE-1\n    rationale: not shipped\n")
	rootCmd.SetArgs([]string{"--wl", wl, "--verbose", scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(output, "CVE-1 (whitelisted)") {
		t.Errorf("whitelisted ids must remain visible in the report, got:\n%s", output)
	}
}

func TestFileMode_MaxDedup(t *testing.T) {
	defer resetFlags()()

	rootCmd.SetArgs([]string{"--dedup", "max", "--ceiling", "High", "--format", "json", scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected Critical to fail a High ceiling, got %v", err)
	}
	if !strings.Contains(output, `"highest": "Critical"`) || !strings.Contains(output, `"verdict": "fail"`) {
		t.Errorf("unexpected JSON report:\n%s", output)
	}
}

func TestFileMode_EmptyDirectoryPasses(t *testing.T) {
	defer resetFlags()()

	rootCmd.SetArgs([]string{"-v", t.TempDir()})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	sep := strings.Repeat("-", 50)
	if output != sep+"\n"+sep+"\nPASS\n" {
		t.Errorf("expected empty report, got %q", output)
	}
}

func TestFileMode_BadLayerFile(t *testing.T) {
	defer resetFlags()()

	dir := writeLayers(t, map[string]string{"a.json": layerA, "b.json": "{not json"})
	rootCmd.SetArgs([]string{"-v", dir})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var ferr *source.LayerFetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected LayerFetchError, got %v", err)
	}
	if !strings.Contains(err.Error(), filepath.Join(dir, "b.json")) {
		t.Errorf("diagnostic must name the failing file, got %q", err.Error())
	}
	if output != "" {
		t.Errorf("no partial report may be written on failure, got %q", output)
	}
	if exitCode(err, &bytes.Buffer{}) != ExitFatal {
		t.Errorf("expected fatal exit code")
	}
}

func TestWhitelistLoadError(t *testing.T) {
	defer resetFlags()()

	missing := filepath.Join(t.TempDir(), "nope.json")
	rootCmd.SetArgs([]string{"--whitelist", missing, scenarioLayers(t)})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var perr *policy.PolicyLoadError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PolicyLoadError, got %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Errorf("diagnostic must name the whitelist, got %q", err.Error())
	}
	if output != "" {
		t.Errorf("expected no output, got %q", output)
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"dedup", []string{"--dedup", "last"}, "unknown dedup strategy"},
		{"ceiling", []string{"--ceiling", "Severe"}, "unknown severity"},
		{"format", []string{"--format", "xml"}, "unknown format"},
		{"mode", []string{"--mode", "magic"}, "unknown mode"},
		{"concurrency", []string{"--concurrency", "0"}, "at least 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer resetFlags()()
			rootCmd.SetArgs(append(tt.args, t.TempDir()))
			err := rootCmd.Execute()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

func TestNoArguments(t *testing.T) {
	defer resetFlags()()
	rootCmd.SetArgs([]string{})
	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error without a positional argument")
	}
}

func TestOutputFile(t *testing.T) {
	defer resetFlags()()

	out := filepath.Join(t.TempDir(), "reports", "risk.json")
	rootCmd.SetArgs([]string{"--format", "json", "--ceiling", "Critical", "-o", out, scenarioLayers(t)})
	output := captureOutput(func() {
		if err := rootCmd.Execute(); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	})
	if output != "" {
		t.Errorf("expected nothing on stdout, got %q", output)
	}
	content, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !strings.Contains(string(content), `"verdict": "pass"`) {
		t.Errorf("unexpected report: %s", content)
	}
}

// fakeEngine serves an image history listing the given layer ids.
func fakeEngine(t *testing.T, status int, layers ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Api-Version", "1.45")
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/_ping") {
			_, _ = w.Write([]byte("OK"))
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/history") {
			http.NotFound(w, r)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"message": "No such image"}`))
			return
		}
		items := make([]string, 0, len(layers))
		for _, id := range layers {
			items = append(items, `{"Id": "`+id+`"}`)
		}
		_, _ = w.Write([]byte("[" + strings.Join(items, ",") + "]"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeClair serves layer payloads keyed by layer id; unknown layers 404.
func fakeClair(t *testing.T, layers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/layers/")
		payload, ok := layers[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLiveMode(t *testing.T) {
	defer resetFlags()()

	engine := fakeEngine(t, http.StatusOK, "sha256:a", "sha256:b")
	clair := fakeClair(t, map[string]string{"sha256:a": layerA, "sha256:b": layerB})
	saved := filepath.Join(t.TempDir(), "layers")

	rootCmd.SetArgs([]string{"--drapi", engine.URL, "--clair", clair.URL, "--save-dir", saved, "--concurrency", "2", "-v", "my-app:latest"})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected policy failure, got %v", err)
	}
	if !strings.Contains(output, "Low - 1\nHigh - 1\n") {
		t.Errorf("unexpected report:\n%s", output)
	}

	// The saved layers re-assess to the same report in file mode.
	resetFlags()
	rootCmd.SetArgs([]string{"-v", saved})
	replay := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected policy failure on replay, got %v", err)
	}
	if replay != output {
		t.Errorf("replayed report differs\n--- live ---\n%s\n--- replay ---\n%s", output, replay)
	}
}

func TestLiveMode_ReplayKeepsHistoryOrder(t *testing.T) {
	defer resetFlags()()

	// The ids sort against history order and disagree on CVE-1's severity,
	// so the replay only matches if it reads the layers in history order.
	critical := `{"Layer": {"Features": [{"Name": "bash", "Vulnerabilities": [
		{"Name": "CVE-1", "Severity": "Critical"}
	]}]}}`
	low := `{"Layer": {"Features": [{"Name": "bash", "Vulnerabilities": [
		{"Name": "CVE-1", "Severity": "Low"}
	]}]}}`
	engine := fakeEngine(t, http.StatusOK, "sha256:ffff", "sha256:0000")
	clair := fakeClair(t, map[string]string{"sha256:ffff": critical, "sha256:0000": low})
	saved := filepath.Join(t.TempDir(), "layers")

	rootCmd.SetArgs([]string{"--drapi", engine.URL, "--clair", clair.URL, "--save-dir", saved, "--concurrency", "2", "-v", "my-app:latest"})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected policy failure, got %v", err)
	}
	if !strings.Contains(output, "Critical - 1\n") {
		t.Errorf("first layer's severity should win:\n%s", output)
	}

	resetFlags()
	rootCmd.SetArgs([]string{"-v", saved})
	replay := captureOutput(func() {
		err = rootCmd.Execute()
	})
	if !errors.As(err, &exitErr) || exitErr.Code != ExitPolicyFail {
		t.Fatalf("expected policy failure on replay, got %v", err)
	}
	if replay != output {
		t.Errorf("replayed report differs\n--- live ---\n%s\n--- replay ---\n%s", output, replay)
	}
}

func TestLiveMode_SaveDirNotEmpty(t *testing.T) {
	defer resetFlags()()

	saved := writeLayers(t, map[string]string{"0000-sha256:old.json": layerA})
	rootCmd.SetArgs([]string{"--drapi", "http://127.0.0.1:1", "--clair", "http://127.0.0.1:1", "--save-dir", saved, "my-app:latest"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "not empty") {
		t.Errorf("expected save directory refusal, got %v", err)
	}
}

func TestLiveMode_LayerFailure(t *testing.T) {
	defer resetFlags()()

	engine := fakeEngine(t, http.StatusOK, "sha256:a", "sha256:gone", "sha256:b")
	clair := fakeClair(t, map[string]string{"sha256:a": layerA, "sha256:b": layerB})

	rootCmd.SetArgs([]string{"--drapi", engine.URL, "--clair", clair.URL, "-v", "my-app:latest"})
	var err error
	output := captureOutput(func() {
		err = rootCmd.Execute()
	})

	var aerr *analysis.AssessmentError
	if !errors.As(err, &aerr) || aerr.SourceID != "sha256:gone" {
		t.Fatalf("expected failure on sha256:gone, got %v", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("diagnostic should carry the status, got %q", err.Error())
	}
	if output != "" {
		t.Errorf("no partial report may be written, got %q", output)
	}
}

func TestLiveMode_HistoryFailure(t *testing.T) {
	defer resetFlags()()

	engine := fakeEngine(t, http.StatusNotFound)
	rootCmd.SetArgs([]string{"--drapi", engine.URL, "--clair", "http://127.0.0.1:1", "my-app:latest"})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "couldn't get image history for 'my-app:latest'") {
		t.Errorf("expected image history diagnostic, got %v", err)
	}
}

func TestResolveMode(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, "layer.json", "{}")
	tests := []struct {
		mode, target, want string
	}{
		{modeAuto, dir, modeFile},
		{modeAuto, file, modeLive},
		{modeAuto, "alpine:3.19", modeLive},
		{"", dir, modeFile},
		{modeLive, dir, modeLive},
		{modeFile, "alpine", modeFile},
	}
	for _, tt := range tests {
		got, err := resolveMode(tt.mode, tt.target)
		if err != nil {
			t.Errorf("resolveMode(%q, %q) error = %v", tt.mode, tt.target, err)
		}
		if got != tt.want {
			t.Errorf("resolveMode(%q, %q) = %q, want %q", tt.mode, tt.target, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	if got := exitCode(nil, &buf); got != ExitPass || buf.Len() != 0 {
		t.Errorf("nil error: code %d, output %q", got, buf.String())
	}

	buf.Reset()
	err := &ExitError{Code: ExitPolicyFail, Err: errors.New("policy check failed: too risky")}
	if got := exitCode(err, &buf); got != ExitPolicyFail {
		t.Errorf("expected %d, got %d", ExitPolicyFail, got)
	}
	if buf.String() != "policy check failed: too risky\n" {
		t.Errorf("unexpected diagnostic %q", buf.String())
	}

	buf.Reset()
	if got := exitCode(errors.New("boom"), &buf); got != ExitFatal {
		t.Errorf("expected %d, got %d", ExitFatal, got)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("diagnostic must be one line, got %q", buf.String())
	}
}
