package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/rollup/internal/scenario"
	"github.com/roach88/rollup/internal/store"
	"github.com/roach88/rollup/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // save the trace here when set
	Unique   bool   // UUIDv7 propagation IDs instead of deterministic ones
	Metrics  bool   // print hierarchy metrics after the run
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Scenario     string               `json:"scenario"`
	Pass         bool                 `json:"pass"`
	Errors       []string             `json:"errors,omitempty"`
	Data         map[string]any       `json:"data"`
	Propagations []PropagationSummary `json:"propagations"`
	Steps        int                  `json:"steps"`
	Metrics      []MetricSample       `json:"metrics,omitempty"`
}

// PropagationSummary is one propagation in command output.
type PropagationSummary struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
	Change any    `json:"change"`
	Seq    int64  `json:"seq"`
	Steps  int    `json:"steps"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run a scenario",
		Long: `Run one scenario file (YAML or CUE), print the final data of every
aggregating node and check the scenario's expectations.

With --db the propagations and their steps are appended to a SQLite trace
log that the trace command can query. Seqs continue after the last one in
the log. Deterministic runs reuse the same IDs and seqs, so saving the same
run twice stores it once, and saving an edited scenario under the same
name is refused; use --unique to keep every run.

Exit codes:
  0 - Scenario ran and every expectation held
  1 - One or more expectations failed
  2 - Command error (unreadable scenario, database failure)

Examples:
  rollup run ./scenarios/counter.yaml
  rollup run ./scenarios/counter.yaml --db ./trace.db --unique
  rollup run ./scenarios/tags.cue --format json --metrics`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database")
	cmd.Flags().BoolVar(&opts.Unique, "unique", false, "use unique propagation IDs (UUIDv7)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print hierarchy metrics")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	s, err := scenario.Load(path)
	if err != nil {
		_ = formatter.Error(ErrCodeLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	var st *store.Store
	if opts.Database != "" {
		logger.Info("opening trace database", "path", opts.Database)
		st, err = store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	runOpts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithMetrics(opts.Metrics),
	}
	if opts.Unique {
		clock := trace.NewClock()
		if st != nil {
			last, err := st.LastSeq(ctx)
			if err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to read last seq", err)
			}
			clock = trace.NewClockAt(last)
		}
		runOpts = append(runOpts, scenario.WithIDs(clock, trace.UUIDv7Generator{}))
	} else if st != nil {
		start, err := scenario.ResumeSeq(ctx, st, s)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read last seq", err)
		}
		runOpts = append(runOpts, scenario.WithStartSeq(start))
	}

	result, err := scenario.Run(s, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}
	formatter.VerboseLog("ran %s: %d propagation(s), %d step(s)", s.Name, len(result.Propagations), len(result.Trace))

	if st != nil {
		if err := scenario.Save(ctx, st, s.Name, result); err != nil {
			var details any
			if errors.Is(err, store.ErrConflict) {
				details = map[string]any{"hint": "the scenario changed since it was saved; use --unique or another --db"}
			}
			_ = formatter.Error(ErrCodeStore, err.Error(), details)
			return WrapExitError(ExitCommandError, "failed to save trace", err)
		}
		formatter.VerboseLog("saved trace to %s", opts.Database)
	}

	var metrics []MetricSample
	if opts.Metrics {
		if metrics, err = gatherMetrics(metricPrefix); err != nil {
			return WrapExitError(ExitCommandError, "failed to gather metrics", err)
		}
	}

	out := RunOutput{
		Scenario:     s.Name,
		Pass:         result.Pass,
		Errors:       result.Errors,
		Data:         result.Data,
		Propagations: summarize(result),
		Steps:        len(result.Trace),
		Metrics:      metrics,
	}

	if formatter.JSON() {
		var cliErr *CLIError
		if !result.Pass {
			cliErr = &CLIError{Code: ErrCodeExpect, Message: fmt.Sprintf("%d expectation(s) failed", len(result.Errors))}
		}
		if err := formatter.Respond(out, cliErr); err != nil {
			return err
		}
	} else {
		printRunText(formatter, out, result)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d expectation(s) failed", len(result.Errors)))
	}
	return nil
}

func summarize(result *scenario.Result) []PropagationSummary {
	steps := make(map[string]int, len(result.Propagations))
	for _, e := range result.Trace {
		steps[e.Propagation]++
	}
	out := make([]PropagationSummary, len(result.Propagations))
	for i, p := range result.Propagations {
		out[i] = PropagationSummary{ID: p.ID, Origin: p.Origin, Change: p.Change, Seq: p.Seq, Steps: steps[p.ID]}
	}
	return out
}

func printRunText(f *OutputFormatter, out RunOutput, result *scenario.Result) {
	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	f.Printf("%s %s: %d propagation(s), %d step(s)\n", mark, out.Scenario, len(out.Propagations), out.Steps)

	refs := make([]string, 0, len(out.Data))
	for ref := range out.Data {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		f.Printf("  %s = %s\n", ref, formatValue(out.Data[ref]))
	}

	if f.Verbose {
		f.Printf("\nTrace:\n")
		for _, e := range result.Trace {
			f.Printf("  %s\n", formatStep(e.Seq, e.Propagation, e.Node, e.Kind, e.Outcome, formatValue(e.Change), formatValue(e.Forwarded), e.Uppers))
		}
	}

	for _, e := range out.Errors {
		f.Printf("  %s\n", e)
	}

	if len(out.Metrics) > 0 {
		f.Printf("\nMetrics:\n")
		for _, m := range out.Metrics {
			f.Printf("  %s\n", m)
		}
	}
}
