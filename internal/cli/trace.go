package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollup/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Scenario string // list filter
	Node     string // show every step at this node instead
}

// TraceResult is the JSON payload of the trace command for one propagation.
type TraceResult struct {
	Propagation store.Propagation `json:"propagation"`
	Steps       []store.Step      `json:"steps"`
	Stats       TraceStats        `json:"stats"`
}

// TraceStats counts the steps of a propagation by outcome.
type TraceStats struct {
	Steps     int `json:"steps"`
	Forwarded int `json:"forwarded"`
	Absorbed  int `json:"absorbed"`
	Dropped   int `json:"dropped"`
	Root      int `json:"root"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [propagation-id]",
		Short: "Query a saved trace",
		Long: `Query a trace database written by "rollup run --db".

Without arguments, lists every saved propagation in seq order. With a
propagation ID, shows its steps: which node each change reached, whether
it was forwarded, absorbed, dropped or stopped at a root, and how many
uppers received the forwarded change. With --node, shows every step
recorded at one node across propagations.

Examples:
  rollup trace --db ./trace.db
  rollup trace --db ./trace.db --scenario counter
  rollup trace --db ./trace.db counter-0001
  rollup trace --db ./trace.db --node A --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runTrace(opts, id, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "list only propagations of this scenario")
	cmd.Flags().StringVar(&opts.Node, "node", "", "show every step recorded at this node")

	return cmd
}

func runTrace(opts *TraceOptions, id string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Verbose {
		props, steps, err := st.Counts(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to count trace", err)
		}
		formatter.VerboseLog("%s: %d propagation(s), %d step(s)", opts.Database, props, steps)
	}

	switch {
	case id != "":
		return showPropagation(ctx, formatter, st, id)
	case opts.Node != "":
		return showNode(ctx, formatter, st, opts.Node)
	default:
		return listPropagations(ctx, formatter, st, opts.Scenario)
	}
}

func listPropagations(ctx context.Context, f *OutputFormatter, st *store.Store, scenarioName string) error {
	props, err := st.ListPropagations(ctx, scenarioName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list propagations", err)
	}

	if f.JSON() {
		return f.Respond(props, nil)
	}
	if len(props) == 0 {
		f.Printf("No propagations found.\n")
		return nil
	}
	for _, p := range props {
		f.Printf("#%d %s %s: %s at %s\n", p.Seq, p.ID, p.Scenario, p.Change, p.Origin)
	}
	return nil
}

func showPropagation(ctx context.Context, f *OutputFormatter, st *store.Store, id string) error {
	p, err := st.ReadPropagation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("propagation not found: %s", id), nil)
		return WrapExitError(ExitCommandError, "propagation not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read propagation", err)
	}

	steps, err := st.ReadSteps(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read steps", err)
	}

	result := TraceResult{Propagation: p, Steps: steps, Stats: stepStats(steps)}
	if f.JSON() {
		return f.Respond(result, nil)
	}

	f.Printf("Propagation %s (%s): %s at %s\n\n", p.ID, p.Scenario, p.Change, p.Origin)
	for _, s := range steps {
		f.Printf("  %s\n", formatStoredStep(s))
	}
	f.Printf("\n%d step(s): %d forwarded, %d absorbed, %d dropped, %d root\n",
		result.Stats.Steps, result.Stats.Forwarded, result.Stats.Absorbed, result.Stats.Dropped, result.Stats.Root)
	return nil
}

func showNode(ctx context.Context, f *OutputFormatter, st *store.Store, node string) error {
	steps, err := st.ReadNodeSteps(ctx, node)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read steps", err)
	}

	if f.JSON() {
		return f.Respond(steps, nil)
	}
	if len(steps) == 0 {
		f.Printf("No steps found at node: %s\n", node)
		return nil
	}
	for _, s := range steps {
		f.Printf("  %s\n", formatStoredStep(s))
	}
	return nil
}

func formatStoredStep(s store.Step) string {
	forwarded := s.Forwarded
	if forwarded == "" {
		forwarded = "-"
	}
	return formatStep(s.Seq, s.Propagation, s.Node, s.Kind, s.Outcome, s.Change, forwarded, s.Uppers)
}

func stepStats(steps []store.Step) TraceStats {
	stats := TraceStats{Steps: len(steps)}
	for _, s := range steps {
		switch s.Outcome {
		case "forwarded":
			stats.Forwarded++
		case "absorbed":
			stats.Absorbed++
		case "dropped":
			stats.Dropped++
		case "root":
			stats.Root++
		}
	}
	return stats
}
