package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/harness"
	"github.com/roach88/pulse/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Run      string
}

// RunOutput is the run command's result payload.
type RunOutput struct {
	Scenario string   `json:"scenario"`
	Chain    string   `json:"chain,omitempty"`
	Pass     bool     `json:"pass"`
	Ended    bool     `json:"ended"`
	Emitted  []string `json:"emitted"`
	Errors   []string `json:"errors,omitempty"`
	Run      string   `json:"run,omitempty"`
	Stored   int      `json:"stored"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run the chain described by a scenario file.

The emitted events are printed in order together with the outcome of the
scenario's assertions. With --db the recorded trace is appended to a SQLite
trace log that pulse trace can read back.

Example:
  pulse run ./scenarios/checkout.yaml
  pulse run --db ./pulse.db --run nightly ./scenarios/checkout.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "append the trace to this SQLite database")
	cmd.Flags().StringVar(&opts.Run, "run", "", "run name stored with the trace (default: scenario name)")

	return cmd
}

func runScenarioFile(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	sc, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	slog.Debug("running scenario", "scenario", sc.Name, "path", path)
	result, err := harness.RunWithObserver(sc, engine.NewLoggingObserver(nil))
	if err != nil {
		_ = formatter.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	out := RunOutput{
		Scenario: sc.Name,
		Chain:    result.Token,
		Pass:     result.Pass,
		Ended:    result.Ended,
		Emitted:  result.Emitted(),
		Errors:   result.Errors,
	}

	if opts.Database != "" {
		run, n, err := storeTrace(ctx, opts, sc.Name, result)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to store trace", err)
		}
		out.Run = run
		out.Stored = n
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: out, Chain: result.Token}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: "scenario failed", Details: result.Errors}
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		printRunText(cmd, out)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}

// storeTrace writes the trace under the run name and returns that name and
// the number of events actually inserted.
func storeTrace(ctx context.Context, opts *RunOptions, name string, result *harness.Result) (string, int, error) {
	run := opts.Run
	if run == "" {
		run = name
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return run, 0, err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	n, err := st.WriteTrace(ctx, run, result.Trace)
	if err != nil {
		return run, 0, err
	}
	slog.Debug("trace stored", "run", run, "events", len(result.Trace), "inserted", n, "db", opts.Database)
	return run, n, nil
}

func printRunText(cmd *cobra.Command, out RunOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scenario: %s\n", out.Scenario)
	if out.Chain != "" {
		fmt.Fprintf(w, "Chain: %s\n", out.Chain)
	}
	fmt.Fprintf(w, "Emitted: %s\n", strings.Join(out.Emitted, " -> "))
	fmt.Fprintf(w, "Ended: %t\n", out.Ended)
	switch {
	case out.Run == "":
	case out.Stored == 0:
		fmt.Fprintf(w, "Stored: 0 events (run %q already holds this trace)\n", out.Run)
	default:
		fmt.Fprintf(w, "Stored: %d events (run %q)\n", out.Stored, out.Run)
	}
	if out.Pass {
		fmt.Fprintln(w, "✓ passed")
		return
	}
	fmt.Fprintln(w, "✗ failed")
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
