package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollup/internal/scenario"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern on the file name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated", "skipped" or ""
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
		Short: "Run every scenario in a directory",
		Long: `Run every scenario file under a directory and check its expectations.

A scenario at dir/name.yaml with a golden file at dir/golden/name.golden
must also reproduce that snapshot byte for byte. Scenarios with parallel
steps are never compared against golden files, because the order of their
steps is not fixed.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  rollup test ./scenarios
  rollup test ./scenarios --filter "counter*"
  rollup test ./scenarios --update
  rollup test ./scenarios --format json`,
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

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Respond(result, nil)
		}
		formatter.Printf("No scenarios found.\n")
		return nil
	}

	for _, file := range files {
		r := runTestScenario(opts, file, cmd)
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}

		mark := "✓"
		if !r.Pass {
			mark = "✗"
		}
		switch r.Golden {
		case "updated":
			formatter.Printf("%s %s (golden updated)\n", mark, r.Name)
		default:
			formatter.Printf("%s %s\n", mark, r.Name)
		}
		for _, e := range r.Errors {
			formatter.Printf("  %s\n", e)
		}
	}

	if formatter.JSON() {
		var cliErr *CLIError
		if result.Failed > 0 {
			cliErr = &CLIError{Code: ErrCodeExpect, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
		}
		if err := formatter.Respond(result, cliErr); err != nil {
			return err
		}
	} else {
		formatter.Printf("\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles finds scenario files under dir whose base name, without
// extension, matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	files, err := scenario.Discover(dir)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return files, nil
	}

	var matched []string
	for _, f := range files {
		base := filepath.Base(f)
		ok, err := filepath.Match(filter, strings.TrimSuffix(base, filepath.Ext(base)))
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func runTestScenario(opts *TestOptions, file string, cmd *cobra.Command) ScenarioResult {
	name := filepath.Base(file)

	s, err := scenario.Load(file)
	if err != nil {
		return ScenarioResult{Name: name, File: file, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}}
	}

	result, err := scenario.Run(s, scenario.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))
	if err != nil {
		return ScenarioResult{Name: s.Name, File: file, Errors: []string{fmt.Sprintf("execution failed: %v", err)}}
	}

	r := ScenarioResult{Name: s.Name, File: file, Pass: result.Pass, Errors: result.Errors}

	if hasParallel(s) {
		r.Golden = "skipped"
		return r
	}

	goldenPath := goldenFilePath(file)
	snapshot, err := scenario.Snapshot(s.Name, result)
	if err != nil {
		r.Pass = false
		r.Errors = append(r.Errors, fmt.Sprintf("snapshot failed: %v", err))
		return r
	}

	if opts.Update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			r.Pass = false
			r.Errors = append(r.Errors, err.Error())
			return r
		}
		r.Golden = "updated"
		return r
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		// No golden file: expectations only.
		return r
	}
	if err != nil {
		r.Pass = false
		r.Errors = append(r.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return r
	}
	if !bytes.Equal(want, snapshot) {
		r.Pass = false
		r.Errors = append(r.Errors, "trace does not match golden file (run with --update to regenerate)")
		return r
	}
	r.Golden = "match"
	return r
}

func hasParallel(s *scenario.Scenario) bool {
	for _, st := range s.Steps {
		if len(st.Parallel) > 0 {
			return true
		}
	}
	return false
}

// goldenFilePath returns dir/golden/<base name>.golden for a scenario file.
func goldenFilePath(file string) string {
	base := filepath.Base(file)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(file), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}
