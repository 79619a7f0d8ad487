package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/afs"
	"github.com/viant/afs/url"

	"github.com/roach88/graphres/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run resolution scenarios",
		Long: `Run resolution scenarios.

Each YAML scenario names a build model and the expected outcome of its
dependency edges. When a scenario has a golden file (golden/<name>.golden
next to it) the canonical outcome must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  graphres test ./scenarios
  graphres test ./scenarios --filter "java-*"
  graphres test ./scenarios --update
  graphres test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	scenariosDir, err := filepath.Abs(scenariosDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid scenarios directory", err)
	}

	fs := afs.New()
	h := harness.New(harness.WithFS(fs), harness.WithLogger(formatter.Logger()))
	suite, err := h.RunSuite(ctx, scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(suite.Scenarios) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(formatter, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(suite.Scenarios)),
		Total:     len(suite.Scenarios),
	}
	for _, o := range suite.Scenarios {
		sr := checkScenario(ctx, fs, o, opts)
		if opts.Format != "json" {
			printScenario(cmd, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(cmd, result)
}

// checkScenario turns a suite outcome into a scenario result, comparing
// against or rewriting the golden file.
func checkScenario(ctx context.Context, fs afs.Service, o harness.ScenarioOutcome, opts *TestOptions) ScenarioResult {
	sr := ScenarioResult{Name: o.Name}
	if o.Err != nil {
		sr.Errors = []string{o.Err.Error()}
		return sr
	}

	data, err := harness.MarshalSnapshot(o.Name, o.Result)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to marshal outcome: %v", err)}
		return sr
	}
	goldenURL := goldenFileURL(o.Path)

	if opts.Update {
		if err := fs.Upload(ctx, goldenURL, 0644, bytes.NewReader(data)); err != nil {
			sr.Errors = []string{fmt.Sprintf("failed to update golden file: %v", err)}
			return sr
		}
		sr.Pass = o.Result.Pass
		sr.Errors = o.Result.Errors
		return sr
	}

	ok, err := fs.Exists(ctx, goldenURL)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("golden comparison failed: %v", err)}
		return sr
	}
	sr.Errors = o.Result.Errors
	if ok {
		golden, err := fs.DownloadWithURL(ctx, goldenURL)
		if err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("golden comparison failed: %v", err))
			return sr
		}
		if !bytes.Equal(golden, data) {
			sr.Errors = append(sr.Errors, "outcome does not match golden file (run with --update to regenerate)")
			return sr
		}
	}
	sr.Pass = o.Result.Pass
	return sr
}

// goldenFileURL returns golden/<name>.golden next to the scenario file.
func goldenFileURL(scenarioURL string) string {
	dir, base := ".", scenarioURL
	if i := strings.LastIndex(scenarioURL, "/"); i >= 0 {
		dir, base = scenarioURL[:i], scenarioURL[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return url.Join(dir, "golden", base+".golden")
}

func printScenario(cmd *cobra.Command, sr ScenarioResult) {
	w := cmd.OutOrStdout()
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := formatter.Respond(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
