package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/northcutted/vuln-gate/pkg/source"
	"github.com/northcutted/vuln-gate/pkg/types"
)

var (
	dockerURL     string
	clairURL      string
	whitelistPath string
	verbose       bool
	mode          string
	ceilingLabel  string
	dedup         string
	concurrency   int
	format        string
	timeout       time.Duration
	saveDir       string
	strict        bool
	outputFile    string
)

// stdout and stderr are swapped out by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:   "vuln-gate [flags] <image | directory>",
	Short: "Fail a CI build when an image carries too severe vulnerabilities",
	Long: `Assess the vulnerability risk of a container image as a CI gate.

Every layer of the image is checked against Clair. Findings are deduplicated
by vulnerability id across layers, counted by severity, and compared with an
acceptance policy: the highest tolerated severity (Medium by default),
optionally overridden by a whitelist that can also exempt specific ids.

Modes:
- Live Mode: the argument is an image reference. Layers are listed through the
  Docker Engine API (--drapi) and each layer is queried in Clair (--clair).
- File Mode: the argument is a directory of saved Clair layer responses, one
  file per layer (e.g. written earlier with --save-dir).

Exit status is 0 when the image passes, 2 when it fails the policy and 1 when
the assessment itself could not be completed.`,
	Example: `  # Live Mode
  vuln-gate --drapi http://172.17.42.1:2375 --clair http://clair:6060 my-app:latest

  # File Mode with a whitelist and the full report
  vuln-gate --whitelist whitelist.json -v ./layers

  # Keep the raw Clair responses for later re-assessment
  vuln-gate --save-dir ./layers my-app:latest`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess(cmd.Context(), args[0])
	},
}

// Execute runs the root command and exits with the assessment's status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err, stderr))
	}
}

func init() {
	rootCmd.Flags().StringVar(&dockerURL, "drapi", source.DefaultDockerURL, "Docker Engine API endpoint (Live Mode only)")
	rootCmd.Flags().StringVar(&clairURL, "clair", source.DefaultClairURL, "Clair API endpoint (Live Mode only)")
	rootCmd.Flags().StringVar(&whitelistPath, "whitelist", "", "Path to a JSON or YAML whitelist document")
	rootCmd.Flags().StringVar(&whitelistPath, "wl", "", "Alias for --whitelist")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the full report and debug logging")
	rootCmd.Flags().StringVar(&mode, "mode", modeAuto, "auto, live or file (auto picks file mode for directories)")
	rootCmd.Flags().StringVar(&ceilingLabel, "ceiling", types.DefaultCeiling.String(), "Highest tolerated severity when the whitelist does not set one")
	rootCmd.Flags().StringVar(&dedup, "dedup", "first", "Which duplicate report to keep: first or max (highest severity)")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "Number of layers fetched in parallel")
	rootCmd.Flags().StringVar(&format, "format", formatText, "Report format: text or json")
	rootCmd.Flags().DurationVar(&timeout, "timeout", source.DefaultRequestTimeout, "Timeout for each Clair request (Live Mode only)")
	rootCmd.Flags().StringVar(&saveDir, "save-dir", "", "Save each layer's Clair response to this directory (Live Mode only)")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "Fail on vulnerability entries without an id instead of skipping them")
	rootCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")
	_ = rootCmd.Flags().MarkHidden("wl")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("vuln-gate {{.Version}}\n")
}
