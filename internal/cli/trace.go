package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pulse/internal/store"
	"github.com/roach88/pulse/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Run      string
	Chain    string
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the trace output of one chain or one run.
type TraceResult struct {
	Chain    string        `json:"chain,omitempty"`
	Run      string        `json:"run,omitempty"`
	Timeline []trace.Event `json:"timeline"`
	Stats    TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents    int  `json:"total_events"`
	Emits          int  `json:"emits"`
	Rinses         int  `json:"rinses"`
	ListenerErrors int  `json:"listener_errors"`
	IsComplete     bool `json:"is_complete"`
}

// ChainListing is the output of trace without --chain or --run.
type ChainListing struct {
	Chains []store.ChainSummary `json:"chains"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show stored chain traces",
		Long: `Read traces written by pulse run --db.

Without --chain or --run the stored chains are listed. With --chain the
timeline of one chain is printed; with --run the merged timeline of every
chain of that run.

Examples:
  pulse trace --db ./pulse.db
  pulse trace --db ./pulse.db --run nightly
  pulse trace --db ./pulse.db --chain chain-1 --kind emit
  pulse trace --db ./pulse.db --chain chain-1 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show every chain of this run")
	cmd.Flags().StringVar(&opts.Chain, "chain", "", "show one chain by token")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only show events of this kind (emit, rinse, ...)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// store.Open would create a fresh database.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Chain == "" && opts.Run == "" {
		chains, err := st.ListChains(ctx, "")
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list chains", err)
		}
		if formatter.JSON() {
			return formatter.Success(ChainListing{Chains: chains})
		}
		printChainListing(cmd, chains)
		return nil
	}

	var events []trace.Event
	if opts.Chain != "" {
		events, err = st.ReadTrace(ctx, opts.Run, opts.Chain)
	} else {
		events, err = st.ReadRun(ctx, opts.Run)
	}
	if errors.Is(err, store.ErrAmbiguousChain) {
		msg := fmt.Sprintf("chain %s is stored under several runs; pass --run", opts.Chain)
		_ = formatter.Error(ErrCodeInvalid, msg, nil)
		return WrapExitError(ExitCommandError, msg, err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if len(events) == 0 {
		what := "chain " + opts.Chain
		if opts.Chain == "" {
			what = "run " + opts.Run
		}
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("no events found for %s", what), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no events found for %s", what))
	}

	result := TraceResult{
		Chain:    opts.Chain,
		Run:      opts.Run,
		Timeline: filterKind(events, opts.Kind),
		Stats:    computeStats(events),
	}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	printTimeline(cmd, result)
	return nil
}

func filterKind(events []trace.Event, kind string) []trace.Event {
	if kind == "" {
		return events
	}
	var out []trace.Event
	for _, ev := range events {
		if string(ev.Kind) == kind {
			out = append(out, ev)
		}
	}
	return out
}

// computeStats counts over the unfiltered events. A trace is complete when
// every chain that started also ended.
func computeStats(events []trace.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	started := make(map[string]bool)
	ended := make(map[string]bool)
	for _, ev := range events {
		switch ev.Kind {
		case trace.KindEmit:
			stats.Emits++
		case trace.KindRinse:
			stats.Rinses++
		case trace.KindListenerError:
			stats.ListenerErrors++
		case trace.KindChainStart:
			started[ev.Chain] = true
		case trace.KindChainEnd:
			ended[ev.Chain] = true
		}
	}
	stats.IsComplete = len(started) > 0
	for token := range started {
		if !ended[token] {
			stats.IsComplete = false
		}
	}
	return stats
}

func printChainListing(cmd *cobra.Command, chains []store.ChainSummary) {
	w := cmd.OutOrStdout()
	if len(chains) == 0 {
		fmt.Fprintln(w, "No chains stored.")
		return
	}
	for _, c := range chains {
		status := "ended"
		if !c.Ended {
			status = "open"
		}
		fmt.Fprintf(w, "%s  run=%s  passes=%d  events=%d  %s\n", c.Token, c.Run, c.Passes, c.Events, status)
	}
}

func printTimeline(cmd *cobra.Command, result TraceResult) {
	w := cmd.OutOrStdout()
	if result.Chain != "" {
		fmt.Fprintf(w, "Chain: %s\n", result.Chain)
	} else {
		fmt.Fprintf(w, "Run: %s\n", result.Run)
	}
	fmt.Fprintln(w, strings.Repeat("=", 60))

	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "[%d] %-14s", ev.Seq, ev.Kind)
		if result.Chain == "" {
			fmt.Fprintf(w, " %s", ev.Chain)
		}
		if ev.Event != "" {
			fmt.Fprintf(w, " %s", ev.Event)
		}
		if ev.Count != 0 {
			fmt.Fprintf(w, " #%d", ev.Count)
		}
		if len(ev.Args) > 0 {
			if data, err := trace.MarshalCanonical(ev.Args); err == nil {
				fmt.Fprintf(w, " %s", data)
			}
		}
		if ev.Error != "" {
			fmt.Fprintf(w, " error=%q", ev.Error)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Events: %d (%d emits, %d rinses, %d listener errors)\n",
		result.Stats.TotalEvents, result.Stats.Emits, result.Stats.Rinses, result.Stats.ListenerErrors)
	if result.Stats.IsComplete {
		fmt.Fprintln(w, "Status: complete")
	} else {
		fmt.Fprintln(w, "Status: incomplete")
	}
}
