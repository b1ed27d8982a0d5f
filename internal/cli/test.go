package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/apiary/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios>...",
		Short: "Run scenario files against the analysis pipeline",
		Long: `Run YAML scenarios through session reconstruction and program
classification and check their assertions.

Each argument is a scenario file or a directory searched recursively for
.yaml and .yml files. A scenario with a golden file next to it
(golden/<name>.golden) must also reproduce that snapshot.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  apiary test ./scenarios
  apiary test ./scenarios --filter "sessions_*"
  apiary test ./scenarios --update
  apiary test ./scenarios/retry.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	// Find scenario files
	var files []string
	for _, p := range paths {
		found, err := harness.FindScenarios(p, opts.Filter)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return NewExitError(ExitCommandError, fmt.Sprintf("scenarios not found: %s", p))
			}
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, &harness.SuiteResult{Scenarios: []harness.ScenarioOutcome{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	h := harness.New(newLogger(opts.RootOptions, cmd))
	result, err := h.RunSuite(ctx, files, goldenCheck(opts.Update))
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario run interrupted", err)
	}

	// Output results
	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// goldenCheck compares each scenario's snapshot with its golden file, or
// rewrites the file when update is set. Scenarios without a golden file and
// scenarios that expected an error are left to their assertions.
func goldenCheck(update bool) harness.Check {
	return func(path string, scenario *harness.Scenario, result *harness.Result) []string {
		if result.Run == nil {
			return nil
		}
		goldenPath := goldenFilePath(path)

		snapshot, err := harness.Snapshot(scenario.Name, result.Run)
		if err != nil {
			return []string{fmt.Sprintf("failed to snapshot run: %v", err)}
		}

		if update {
			if err := updateGoldenFile(goldenPath, snapshot); err != nil {
				return []string{fmt.Sprintf("failed to update golden file: %v", err)}
			}
			return nil
		}

		golden, err := os.ReadFile(goldenPath)
		if errors.Is(err, fs.ErrNotExist) {
			// No golden file - use assertion-based validation only
			return nil
		}
		if err != nil {
			return []string{fmt.Sprintf("failed to read golden file: %v", err)}
		}
		if !bytes.Equal(golden, snapshot) {
			return []string{"snapshot does not match golden file (run with --update to regenerate)"}
		}
		return nil
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// updateGoldenFile writes the current snapshot as the golden file.
func updateGoldenFile(goldenPath string, snapshot []byte) error {
	// Ensure golden directory exists
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, snapshot, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result *harness.SuiteResult) error {
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

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as human-readable text.
func outputTestText(cmd *cobra.Command, result *harness.SuiteResult) error {
	w := cmd.OutOrStdout()

	for _, s := range result.Scenarios {
		name := s.Name
		if name == "" {
			name = filepath.Base(s.Path)
		}
		if s.Pass {
			fmt.Fprintf(w, "✓ %s\n", name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
